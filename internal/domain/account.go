package domain

import (
	"errors"
	"strings"
)

// Account identifies a vault user or the vault's own holding account.
type Account string

// ErrEmptyAccount is returned when no caller identity is provided.
var ErrEmptyAccount = errors.New("account is empty")

// ParseAccount trims and validates a caller identifier.
func ParseAccount(s string) (Account, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyAccount
	}
	return Account(s), nil
}

func (a Account) String() string { return string(a) }
