// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilePassword(t *testing.T) {
	file := filepath.Join(t.TempDir(), "password")
	provider := FilePassword(file)
	ctx := context.Background()

	_, _, err := provider(ctx)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(file, []byte("secret\n"), 0o600))
	password, ok, err := provider(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("secret"), password)

	// Rotated on disk, picked up by the next call.
	require.NoError(t, os.WriteFile(file, []byte("rotated\r\n"), 0o600))
	password, ok, err = provider(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("rotated"), password)

	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, ok, err = provider(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConstantCredentials(t *testing.T) {
	username, ok, err := ConstantUsername("user")(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "user", username)

	password, ok, err := ConstantPassword([]byte("pass"))(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("pass"), password)
}
