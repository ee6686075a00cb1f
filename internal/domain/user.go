// Package domain holds the plain entities shared by the queue, the rooms
// and the wire protocol, plus the identifier parsing rules.
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36

	AnonymousName = "anonymous"
)

var (
	ErrUserIDEmpty     = errors.New("userId is required")
	ErrUserIDTooLong   = errors.New("userId too long")
	ErrUsernameTooLong = errors.New("username too long")
)

type (
	UserID string
	ConnID string
)

// ValidateUserID trims id and checks its length.
func ValidateUserID(raw string) (UserID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(id), nil
}

// Profile is the display info shown to a partner. It is not authentication data.
type Profile struct {
	Name      string   `json:"name,omitempty"`
	Age       *int     `json:"age,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// DisplayName falls back to AnonymousName.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return AnonymousName
	}
	if len(name) > MaxUsernameLen {
		name = name[:MaxUsernameLen]
	}
	return name
}

type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r AgeRange) Contains(age int) bool {
	return age >= r.Min && age <= r.Max
}

type Preferences struct {
	AgeRange  *AgeRange `json:"ageRange,omitempty"`
	Interests []string  `json:"interests,omitempty"`
	Gender    string    `json:"gender,omitempty"`
}

// Declared reports whether any preference was actually stated.
func (p *Preferences) Declared() bool {
	if p == nil {
		return false
	}
	return p.AgeRange != nil || len(p.Interests) > 0 || p.Gender != ""
}
