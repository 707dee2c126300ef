package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnknownCommand = errors.New("unknown command")

// CommandKind is a relay control action.
type CommandKind string

const (
	CommandLock         CommandKind = "LOCK"
	CommandUnlock       CommandKind = "UNLOCK"
	CommandBatteryCheck CommandKind = "BATTERY_CHECK"
)

// Tokens accepted from command intake.
const (
	TokenLock    = "BLOQUEAR"
	TokenUnlock  = "LIBERAR"
	TokenBattery = "BATERIA"
)

// ParseCommandKind maps an intake token to a command kind. Matching ignores case and surrounding
// whitespace.
func ParseCommandKind(token string) (CommandKind, error) {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case TokenLock:
		return CommandLock, nil
	case TokenUnlock:
		return CommandUnlock, nil
	case TokenBattery:
		return CommandBatteryCheck, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, token)
}

// Text returns the terminal command sent for the kind.
func (k CommandKind) Text() string {
	if k == CommandLock {
		return "Relay,1#"
	}
	return "Relay,0#"
}

// CommandRequest is a relay command coming from an intake source.
type CommandRequest struct {
	IMEI   string `json:"imei"`
	Token  string `json:"command"`
	Ref    string `json:"ref,omitempty"`
	Source string `json:"source,omitempty"`
}

// PendingCommand is the single unconfirmed command of a device.
type PendingCommand struct {
	IMEI   string      `json:"imei" bson:"imei"`
	Kind   CommandKind `json:"kind" bson:"kind"`
	Text   string      `json:"text" bson:"text"`
	Serial uint16      `json:"serial" bson:"serial"`
	Ref    string      `json:"ref,omitempty" bson:"ref,omitempty"`
	Source string      `json:"source,omitempty" bson:"source,omitempty"`
	SentAt time.Time   `json:"sentAt" bson:"sentAt"`
}
