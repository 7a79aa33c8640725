package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

const sessionFormatVersion = 1

// ErrCorrupt is returned when a stored session cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

type envelope struct {
	Version int `json:"v"`
	*Session
}

// Encode serialises s with a schema version header.
func Encode(s *Session) ([]byte, error) {
	if s == nil || s.SessionID == "" || s.UserID == "" {
		return nil, errors.New("session id and user id are required")
	}
	return json.Marshal(envelope{Version: sessionFormatVersion, Session: s})
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*Session, error) {
	env := envelope{Session: &Session{}}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != sessionFormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, env.Version)
	}
	if env.SessionID == "" || env.UserID == "" {
		return nil, fmt.Errorf("%w: missing identifiers", ErrCorrupt)
	}
	return env.Session, nil
}
