package gt06

import (
	"errors"
	"time"
)

// Structural errors. The frame is dropped; the connection is kept.
var (
	ErrFrameTooShort    = errors.New("gt06: frame too short")
	ErrBadStartMarker   = errors.New("gt06: invalid start marker")
	ErrInvalidLength    = errors.New("gt06: invalid length byte")
	ErrTruncatedFrame   = errors.New("gt06: declared length exceeds frame")
	ErrChecksumMismatch = errors.New("gt06: checksum mismatch")
)

// Semantic errors. The message is still delivered with whatever could be decoded.
var (
	ErrInvalidIMEI       = errors.New("gt06: invalid imei")
	ErrShortStatusBlock  = errors.New("gt06: status block too short")
	ErrShortLocation     = errors.New("gt06: location block too short")
	ErrShortTerminalInfo = errors.New("gt06: terminal info missing")
	ErrInvalidTimestamp  = errors.New("gt06: invalid timestamp")
)

// Header holds the fields common to every frame.
type Header struct {
	Length   byte   `json:"length"`
	Protocol byte   `json:"protocol"`
	Serial   uint16 `json:"serial"`
}

// Message is one decoded frame. Err carries semantic failures; Body then holds the part that
// decoded cleanly.
type Message struct {
	Header Header `json:"header"`
	Raw    []byte `json:"-"`
	Body   Body   `json:"body"`
	Err    error  `json:"-"`
}

// Body is implemented by the closed set of message bodies in this package.
type Body interface {
	Kind() string
	isBody()
}

// Login carries the terminal identity.
type Login struct {
	IMEI string `json:"imei"`
}

// TerminalInfo is the decoded terminal-information byte.
type TerminalInfo struct {
	Raw         byte   `json:"raw"`
	RelayCut    bool   `json:"relayCut"`
	GPSTracking bool   `json:"gpsTracking"`
	Alarm       string `json:"alarm"`
	Charging    bool   `json:"charging"`
	Ignition    bool   `json:"ignition"`
	Armed       bool   `json:"armed"`
}

// LowBattery reports whether the alarm class is the low battery alarm.
func (t TerminalInfo) LowBattery() bool {
	return t.Alarm == AlarmLowBattery
}

// Heartbeat is the periodic status report.
type Heartbeat struct {
	Terminal  TerminalInfo `json:"terminal"`
	Voltage   uint8        `json:"voltage"`
	GSM       uint8        `json:"gsm"`
	Extension []byte       `json:"extension,omitempty"`
}

// CellInfo is the LBS block of an extended location report.
type CellInfo struct {
	MCC    uint16 `json:"mcc"`
	MNC    uint8  `json:"mnc"`
	LAC    uint16 `json:"lac"`
	CellID uint32 `json:"cellId"`
}

// Location is a position fix. Terminal and Cell are only set for extended reports.
type Location struct {
	Extended   bool          `json:"extended"`
	Timestamp  time.Time     `json:"timestamp"`
	Satellites uint8         `json:"satellites"`
	Latitude   float64       `json:"latitude"`
	Longitude  float64       `json:"longitude"`
	Speed      uint8         `json:"speed"`
	Course     uint16        `json:"course"`
	GPSFixed   bool          `json:"gpsFixed"`
	Ignition   bool          `json:"ignition"`
	Cell       *CellInfo     `json:"cell,omitempty"`
	Terminal   *TerminalInfo `json:"terminal,omitempty"`
}

// CommandResponse is the terminal's textual answer to a server command.
type CommandResponse struct {
	Text string `json:"text"`
}

// Unhandled is any protocol number without a registered decoder.
type Unhandled struct {
	Payload []byte `json:"payload,omitempty"`
}

func (*Login) Kind() string           { return "login" }
func (*Heartbeat) Kind() string       { return "heartbeat" }
func (*Location) Kind() string        { return "location" }
func (*CommandResponse) Kind() string { return "command_response" }
func (*Unhandled) Kind() string       { return "unhandled" }

func (*Login) isBody()           {}
func (*Heartbeat) isBody()       {}
func (*Location) isBody()        {}
func (*CommandResponse) isBody() {}
func (*Unhandled) isBody()       {}
