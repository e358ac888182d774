// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const (
	MaxUserIDLen   = 64
	MaxUserNameLen = 64
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrUserNameEmpty   = errors.New("user name empty")
	ErrUserNameTooLong = errors.New("user name too long")
)

type UserID string

// User is the identity a connection presents at join time, plus the
// display color assigned by the relay. The relay trusts whatever
// identity the surrounding application hands it.
type User struct {
	ID    UserID `json:"userId"`
	Name  string `json:"userName"`
	Color string `json:"color"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, name string) (*User, error) {
	if len(id) == 0 {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if len(name) == 0 {
		return nil, ErrUserNameEmpty
	}
	if len(name) > MaxUserNameLen {
		return nil, ErrUserNameTooLong
	}
	return &User{ID: id, Name: name}, nil
}
