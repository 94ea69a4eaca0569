package uuidutil

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// NewSessionID generates a random v4 UUID for a stepwise session or run.
func NewSessionID() string {
	return uuid.NewString()
}

// IsValid checks if a string is a valid UUID format
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// NewClientID builds a client id of the form "<prefix>-<host>-<short uuid>"
// used to tell callers apart in worker logs.
func NewClientID(prefix string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	if prefix == "" {
		return host + "-" + short
	}
	return prefix + "-" + host + "-" + short
}
