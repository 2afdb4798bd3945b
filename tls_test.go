// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

// createEncryptedPEMBlock encrypts a known plaintext the way encrypted key
// files are expected to be laid out.
func createEncryptedPEMBlock(
	t *testing.T,
	password []byte,
) (*pem.Block, []byte) {
	salt := make([]byte, pemSaltSize)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	key := pbkdf2.Key(password, salt, pbkdf2Iterations, aesKeySize, sha3.New256)

	nonce := make([]byte, aesGcmNonce)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	plaintext := []byte("spongebob")
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	encrypted := salt
	encrypted = append(encrypted, nonce...)
	encrypted = append(encrypted, ciphertext...)

	return &pem.Block{Type: "ENCRYPTED MESSAGE", Bytes: encrypted}, plaintext
}

func TestDecryptPEMBlock(t *testing.T) {
	password := []byte("squarepants")
	block, plaintext := createEncryptedPEMBlock(t, password)

	t.Run("ValidDecryption", func(t *testing.T) {
		decrypted, err := decryptPEMBlock(block, password)
		require.NoError(t, err)
		require.Equal(t, string(plaintext), string(decrypted))
	})

	t.Run("NilPEMBlock", func(t *testing.T) {
		_, err := decryptPEMBlock(nil, password)
		require.EqualError(t, err, "PEM block is nil")
	})

	t.Run("InvalidPassword", func(t *testing.T) {
		_, err := decryptPEMBlock(block, []byte("wrongpassword"))
		require.EqualError(t, err, "cipher: message authentication failed")
	})

	t.Run("TooShortCiphertext", func(t *testing.T) {
		invalid := &pem.Block{
			Type:  "ENCRYPTED MESSAGE",
			Bytes: block.Bytes[:19],
		}
		_, err := decryptPEMBlock(invalid, password)
		require.EqualError(t, err, "ciphertext in PEM block is too short")
	})

	t.Run("TooShortSalt", func(t *testing.T) {
		invalid := &pem.Block{Type: "ENCRYPTED MESSAGE", Bytes: []byte{1, 2}}
		_, err := decryptPEMBlock(invalid, password)
		require.EqualError(t, err, "PEM block is too short")
	})
}

func TestTLSConfigOptions(t *testing.T) {
	ctx := context.Background()

	cfg, err := TLSConfig(WithInsecureSkipVerify())(ctx)
	require.NoError(t, err)
	require.True(t, cfg.InsecureSkipVerify)

	_, err = TLSConfig(WithCA(filepath.Join(t.TempDir(), "missing.pem")))(ctx)
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)

	empty := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("not a cert"), 0o600))
	_, err = TLSConfig(WithCA(empty))(ctx)
	require.ErrorAs(t, err, &invalid)
}
