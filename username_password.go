// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"bytes"
	"context"
	"os"
)

type (
	// UsernameProvider supplies the username for each CONNECT the session
	// client sends, including those of automatic reconnects. The username is
	// only sent if the flag is set.
	UsernameProvider func(context.Context) (string, bool, error)

	// PasswordProvider supplies the password for each CONNECT, like
	// UsernameProvider.
	PasswordProvider func(context.Context) ([]byte, bool, error)
)

// ConstantUsername always sends the given username.
func ConstantUsername(username string) UsernameProvider {
	return func(context.Context) (string, bool, error) {
		return username, true, nil
	}
}

// ConstantPassword always sends the given password.
func ConstantPassword(password []byte) PasswordProvider {
	return func(context.Context) ([]byte, bool, error) {
		return password, true, nil
	}
}

// FilePassword re-reads the password from the named file on every connect, so
// that a rotated secret is picked up by the next reconnect. A single trailing
// newline is dropped; an empty file sends no password.
func FilePassword(filename string) PasswordProvider {
	return func(context.Context) ([]byte, bool, error) {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, false, err
		}

		data = bytes.TrimSuffix(data, []byte("\n"))
		data = bytes.TrimSuffix(data, []byte("\r"))
		return data, len(data) > 0, nil
	}
}
