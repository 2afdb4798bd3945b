// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

// TLSOption modifies the TLS configuration of a connection. Options are
// applied on every connection attempt, so files are re-read each time.
type TLSOption func(context.Context, *tls.Config) error

const (
	pemSaltSize      = 8
	aesGcmNonce      = 12
	pbkdf2Iterations = 10000
	aesKeySize       = 32
)

// TLSConfig builds a TLSConfigProvider from a list of TLS options.
func TLSConfig(opts ...TLSOption) TLSConfigProvider {
	return func(ctx context.Context) (*tls.Config, error) {
		cfg := &tls.Config{MinVersion: tls.VersionTLS12}
		for _, opt := range opts {
			if err := opt(ctx, cfg); err != nil {
				return nil, err
			}
		}
		return cfg, nil
	}
}

// WithX509 adds a client certificate from PEM files.
func WithX509(certFile, keyFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return &InvalidArgumentError{
				message: "error loading client certificate",
				wrapped: err,
			}
		}
		cfg.Certificates = append(cfg.Certificates, cert)
		return nil
	}
}

// WithEncryptedX509 adds a client certificate whose private key is encrypted
// with the password stored in passwordFile.
func WithEncryptedX509(certFile, keyFile, passwordFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		password, err := os.ReadFile(passwordFile)
		if err != nil {
			return &InvalidArgumentError{
				message: "error reading key password file",
				wrapped: err,
			}
		}

		cert, err := loadX509KeyPairWithPassword(certFile, keyFile, password)
		if err != nil {
			return &InvalidArgumentError{
				message: "error loading encrypted client certificate",
				wrapped: err,
			}
		}
		cfg.Certificates = append(cfg.Certificates, cert)
		return nil
	}
}

// WithCA trusts the CA certificates in the given PEM file.
func WithCA(caFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		pool, err := loadCACertPool(caFile)
		if err != nil {
			return &InvalidArgumentError{
				message: "error loading CA certificates",
				wrapped: err,
			}
		}
		cfg.RootCAs = pool
		return nil
	}
}

// WithInsecureSkipVerify disables server certificate verification. It is
// intended for local brokers only.
func WithInsecureSkipVerify() TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cfg.InsecureSkipVerify = true // #nosec G402
		return nil
	}
}

// loadCACertPool loads a CA certificate pool from the specified file.
func loadCACertPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("no certificates found in CA file")
	}
	return pool, nil
}

// loadX509KeyPairWithPassword loads key pair from the encrypted file.
func loadX509KeyPairWithPassword(
	certFile string,
	keyFile string,
	password []byte,
) (tls.Certificate, error) {
	certPEMBlock, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPEMBlock, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyDERBlock, _ := pem.Decode(keyPEMBlock)
	if keyDERBlock == nil {
		return tls.Certificate{}, errors.New(
			"failed to decode PEM block containing private key",
		)
	}

	// x509.DecryptPEMBlock is deprecated due to insecurity,
	// and x509 library doesn't want to support it:
	// https://github.com/golang/go/issues/8860
	decrypted, err := decryptPEMBlock(keyDERBlock, password)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  keyDERBlock.Type,
		Bytes: decrypted,
	})
	return tls.X509KeyPair(certPEMBlock, keyPEM)
}

// decryptPEMBlock decrypts a PEM block using PBKDF2 and AES-GCM. The block
// holds an 8-byte salt, a 12-byte nonce, and the ciphertext.
func decryptPEMBlock(block *pem.Block, password []byte) ([]byte, error) {
	if block == nil {
		return nil, errors.New("PEM block is nil")
	}
	if len(block.Bytes) < pemSaltSize {
		return nil, errors.New("PEM block is too short")
	}

	salt := block.Bytes[:pemSaltSize]
	key := pbkdf2.Key(password, salt, pbkdf2Iterations, aesKeySize, sha3.New256)
	return aesGCMDecrypt(block.Bytes[pemSaltSize:], key)
}

// aesGCMDecrypt decrypts data using AES-GCM mode.
func aesGCMDecrypt(encrypted, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if len(encrypted) < aesGcmNonce {
		return nil, errors.New("ciphertext in PEM block is too short")
	}
	nonce, ciphertext := encrypted[:aesGcmNonce], encrypted[aesGcmNonce:]

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return gcm.Open(nil, nonce, ciphertext, nil)
}
