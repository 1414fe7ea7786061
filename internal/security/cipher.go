package security

import (
	"crypto/aes"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// ErrCiphertext is returned when a ciphertext cannot be decrypted: bad base64,
// wrong block length, or invalid padding. Callers map it to the domain-level
// "OTP invalid" outcome without exposing cipher internals.
var ErrCiphertext = errors.New("malformed ciphertext")

const keySize = 16 // AES-128

// GeneratePassphrase returns a fresh random passphrase: 128 bits from
// crypto/rand, base64-encoded. It is handed to the caller exactly once at
// challenge issuance and never persisted anywhere client-visible.
func GeneratePassphrase() (string, error) {
	b := make([]byte, keySize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DeriveKey turns a passphrase into the AES-128 key material used for OTP
// submission: the base64 MD5 digest of the passphrase, truncated to 16 bytes.
// Clients derive the same key from the passphrase; the transform must not change.
func DeriveKey(secret string) []byte {
	sum := md5.Sum([]byte(secret))
	digest := base64.StdEncoding.EncodeToString(sum[:])
	key := make([]byte, keySize)
	copy(key, digest)
	return key
}

// Encrypt encrypts plaintext with AES-128 ECB and PKCS#5 padding and returns
// the result base64-encoded. The key is unique per challenge, so blocks are
// never reused across distinct challenges.
func Encrypt(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	padded := pkcs5Pad([]byte(plaintext), block.BlockSize())
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], padded[i:i+block.BlockSize()])
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Any malformed input fails with ErrCiphertext.
func Decrypt(ciphertext string, key []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 || len(raw)%block.BlockSize() != 0 {
		return "", ErrCiphertext
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += block.BlockSize() {
		block.Decrypt(out[i:i+block.BlockSize()], raw[i:i+block.BlockSize()])
	}
	unpadded, err := pkcs5Unpad(out, block.BlockSize())
	if err != nil {
		return "", ErrCiphertext
	}
	return string(unpadded), nil
}

func pkcs5Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padding)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padding)
	}
	return out
}

func pkcs5Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrCiphertext
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, ErrCiphertext
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, ErrCiphertext
		}
	}
	return data[:len(data)-padding], nil
}
