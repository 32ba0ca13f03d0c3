package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// Password returns the address book password stored in the OS keyring for
// user. A missing entry is not an error: the address book may be public.
func Password(user string) (string, error) {
	if user == "" {
		return "", nil
	}
	p, err := keyring.Get(KeyringService, user)
	if errors.Is(err, keyring.ErrNotFound) {
		slog.Debug(MsgPassFail,
			LogKeyComponent, CompConfig,
			LogKeyUser, user,
			LogKeyError, err)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", ErrKeyring, err)
	}
	return p, nil
}

// SetPassword stores the address book password for user in the OS keyring.
func SetPassword(user, password string) error {
	return keyring.Set(KeyringService, user, password)
}
