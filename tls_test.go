// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

func encryptPEMBlock(
	t *testing.T,
	typ string,
	plaintext, password []byte,
) *pem.Block {
	salt := make([]byte, keySaltSize)
	nonce := make([]byte, keyNonceSize)
	_, err := rand.Read(salt)
	require.NoError(t, err)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	key := pbkdf2.Key(password, salt, keyRounds, keySize, sha3.New256)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	encrypted := append(salt, nonce...)
	encrypted = append(encrypted, gcm.Seal(nil, nonce, plaintext, nil)...)
	return &pem.Block{Type: typ, Bytes: encrypted}
}

func TestDecryptPEMBlock(t *testing.T) {
	password := []byte("squarepants")
	block := encryptPEMBlock(t, "ENCRYPTED MESSAGE", []byte("spongebob"),
		password)

	decrypted, err := decryptPEMBlock(block, password)
	require.NoError(t, err)
	require.Equal(t, "spongebob", string(decrypted))

	_, err = decryptPEMBlock(nil, password)
	require.EqualError(t, err, "PEM block is nil")

	_, err = decryptPEMBlock(block, []byte("wrongpassword"))
	require.Error(t, err)

	_, err = decryptPEMBlock(&pem.Block{
		Type:  block.Type,
		Bytes: block.Bytes[:keySaltSize+keyNonceSize-1],
	}, password)
	require.EqualError(t, err, "ciphertext in PEM block is too short")
}

// writeKeyPair writes a self-signed certificate and its key, encrypted with
// password, and returns the certificate, key and password file paths.
func writeKeyPair(t *testing.T, password []byte) (string, string, string) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "disco_test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(
		rand.Reader, template, template, &priv.PublicKey, priv,
	)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "client.crt")
	keyFile := filepath.Join(dir, "client.key")
	passFile := filepath.Join(dir, "client.pass")

	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(
		&pem.Block{Type: "CERTIFICATE", Bytes: der},
	), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(
		encryptPEMBlock(t, "EC PRIVATE KEY", keyDER, password),
	), 0o600))
	require.NoError(t, os.WriteFile(passFile, password, 0o600))
	return certFile, keyFile, passFile
}

func TestWithEncryptedX509(t *testing.T) {
	certFile, keyFile, passFile := writeKeyPair(t, []byte("pineapple"))

	cfg, err := TLSConfig(
		WithEncryptedX509(certFile, keyFile, passFile),
	)(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	require.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	// The key does not decrypt with another password.
	require.NoError(t, os.WriteFile(passFile, []byte("papaya"), 0o600))
	_, err = TLSConfig(
		WithEncryptedX509(certFile, keyFile, passFile),
	)(context.Background())
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
}

func TestTLSConfigFromConnectionString(t *testing.T) {
	certFile, keyFile, passFile := writeKeyPair(t, []byte("pineapple"))

	provider, _, err := SessionClientConfigFromConnectionString(
		"HostName=broker.local;UseTls=true;CertFile=" + certFile +
			";KeyFile=" + keyFile + ";KeyFilePassword=" + passFile,
	)
	require.NoError(t, err)
	require.NotNil(t, provider)

	_, _, err = SessionClientConfigFromConnectionString(
		"HostName=broker.local;KeyFilePassword=" + passFile,
	)
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
}

func TestWithCA(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.pem")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	_, err := TLSConfig(WithCA(empty))(context.Background())
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)

	_, err = TLSConfig(
		WithCA(filepath.Join(dir, "missing.pem")),
	)(context.Background())
	require.ErrorAs(t, err, &invalid)
}
