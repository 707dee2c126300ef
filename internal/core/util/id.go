package util

import (
	"github.com/google/uuid"
)

// GenerateID returns a random identifier used as a command reference.
func GenerateID() string {
	return uuid.NewString()
}
