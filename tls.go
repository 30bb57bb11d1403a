// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

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

const (
	keySaltSize  = 8
	keyNonceSize = 12
	keyRounds    = 10000
	keySize      = 32
)

// TLSOption adjusts a TLS configuration before each connection.
type TLSOption func(context.Context, *tls.Config) error

// TLSConfig builds a TLSConfigProvider that applies the options to a fresh
// configuration on every call, so rotated files are picked up on reconnect.
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

// WithX509 presents the given client certificate and key.
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

// WithEncryptedX509 presents the given client certificate and a private key
// encrypted with the password in passFile. The key block holds an 8-byte
// salt for PBKDF2 (SHA3-256) followed by a 12-byte nonce and the AES-GCM
// ciphertext.
func WithEncryptedX509(certFile, keyFile, passFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cert, err := loadEncryptedX509KeyPair(certFile, keyFile, passFile)
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

func loadEncryptedX509KeyPair(
	certFile, keyFile, passFile string,
) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	password, err := os.ReadFile(passFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return tls.Certificate{}, errors.New("no PEM block in key file")
	}
	der, err := decryptPEMBlock(block, password)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, pem.EncodeToMemory(&pem.Block{
		Type:  block.Type,
		Bytes: der,
	}))
}

// decryptPEMBlock reverses the key encryption of WithEncryptedX509.
func decryptPEMBlock(block *pem.Block, password []byte) ([]byte, error) {
	if block == nil {
		return nil, errors.New("PEM block is nil")
	}
	if len(block.Bytes) < keySaltSize+keyNonceSize {
		return nil, errors.New("ciphertext in PEM block is too short")
	}

	salt := block.Bytes[:keySaltSize]
	nonce := block.Bytes[keySaltSize : keySaltSize+keyNonceSize]
	ciphertext := block.Bytes[keySaltSize+keyNonceSize:]

	key := pbkdf2.Key(password, salt, keyRounds, keySize, sha3.New256)
	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// WithCA trusts the PEM certificates in caFile instead of the system pool.
func WithCA(caFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return &InvalidArgumentError{
				message: "error reading CA file",
				wrapped: err,
			}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return &InvalidArgumentError{
				message: "CA file contains no certificates",
			}
		}
		cfg.RootCAs = pool
		return nil
	}
}

// WithInsecureSkipVerify disables server certificate verification. It is only
// intended for a broker on localhost.
func WithInsecureSkipVerify() TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cfg.InsecureSkipVerify = true // #nosec G402
		return nil
	}
}
