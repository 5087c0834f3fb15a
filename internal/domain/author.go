// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxAuthorIDLen = 64

var (
	ErrAuthorIDEmpty   = errors.New("author id empty")
	ErrAuthorIDTooLong = errors.New("author id too long")
)

// AuthorID identifies the participant that produced a stroke.
// It is probabilistically unique and not a security boundary.
type AuthorID string

// ConnID identifies one relay connection.
type ConnID string

// NewAuthorID is generated once per participant session at connect time.
func NewAuthorID() AuthorID {
	return AuthorID(uuid.NewString())
}

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// ParseAuthorID validates an id supplied by a client.
func ParseAuthorID(raw string) (AuthorID, error) {
	if len(raw) == 0 {
		return "", ErrAuthorIDEmpty
	}
	if len(raw) > MaxAuthorIDLen {
		return "", ErrAuthorIDTooLong
	}
	return AuthorID(raw), nil
}
