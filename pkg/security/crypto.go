// Package security implements the signing primitives shared by sync
// packages and offline update packages: RSA-PSS over SHA-256 with PEM key
// serialization.
package security

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultKeySize is the RSA modulus size used for generated key pairs.
const DefaultKeySize = 2048

// PEM block types.
const (
	privateKeyBlock = "PRIVATE KEY"
	publicKeyBlock  = "PUBLIC KEY"
)

// Sentinel errors.
var (
	ErrInvalidPEM       = errors.New("invalid PEM data")
	ErrNotRSAKey        = errors.New("key is not an RSA key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// pssOptions selects maximum-length salts so signatures interoperate with
// verifiers expecting PSS.MAX_LENGTH.
var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}

// GenerateKeyPair creates an RSA key pair and returns it PEM-encoded:
// PKCS #8 private key, PKIX public key.
func GenerateKeyPair(bits int) (privatePEM, publicPEM []byte, err error) {
	if bits <= 0 {
		bits = DefaultKeySize
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate rsa key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: privateKeyBlock, Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: publicKeyBlock, Bytes: pubDER})

	return privatePEM, publicPEM, nil
}

// ParsePrivateKey decodes a PEM-encoded RSA private key. PKCS #8 and PKCS #1
// encodings are both accepted.
func ParsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, ErrInvalidPEM
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}

		return pkcs1, nil
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrNotRSAKey
	}

	return key, nil
}

// ParsePublicKey decodes a PEM-encoded PKIX RSA public key.
func ParsePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, ErrInvalidPEM
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSAKey
	}

	return key, nil
}

// Sign produces an RSA-PSS signature over the SHA-256 digest of data.
func Sign(privatePEM, data []byte) ([]byte, error) {
	key, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(data)

	signature, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, fmt.Errorf("sign data: %w", err)
	}

	return signature, nil
}

// Verify checks an RSA-PSS signature over the SHA-256 digest of data.
func Verify(publicPEM, data, signature []byte) error {
	key, err := ParsePublicKey(publicPEM)
	if err != nil {
		return err
	}

	digest := sha256.Sum256(data)

	err = rsa.VerifyPSS(key, crypto.SHA256, digest[:], signature, pssOptions)
	if err != nil {
		return ErrInvalidSignature
	}

	return nil
}

// HashHex returns the hex-encoded SHA-256 digest of data.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// FileHashHex returns the hex-encoded SHA-256 digest of a file's contents,
// streamed rather than loaded whole.
func FileHashHex(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	h := sha256.New()

	_, err = io.Copy(h, file)
	if err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
