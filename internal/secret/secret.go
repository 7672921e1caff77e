package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	ivSize  = 16
	tagSize = 16
	keySize = 32
)

// ErrDecryptFailed indicates tampered ciphertext or a wrong key.
var ErrDecryptFailed = errors.New("secret: decrypt failed")

// Payload holds an encrypted credential as stored at rest. All fields are
// hex encoded.
type Payload struct {
	IV   string `json:"kiv"`
	Data string `json:"ken"`
	Tag  string `json:"kau"`
}

// Encrypt seals plaintext with AES-256-GCM under the hex-encoded 32-byte
// key. The IV is freshly random on every call and the authentication tag is
// carried separately from the ciphertext. Pure and stateless: key material
// is never retained.
func Encrypt(plaintext, keyHex string) (Payload, error) {
	aead, errCipher := newAEAD(keyHex)
	if errCipher != nil {
		return Payload{}, errCipher
	}

	iv := make([]byte, ivSize)
	if _, errRead := io.ReadFull(rand.Reader, iv); errRead != nil {
		return Payload{}, fmt.Errorf("secret: iv gen: %w", errRead)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	if len(sealed) < tagSize {
		return Payload{}, fmt.Errorf("secret: sealed output too short")
	}
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return Payload{
		IV:   hex.EncodeToString(iv),
		Data: hex.EncodeToString(ciphertext),
		Tag:  hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens a payload sealed by Encrypt. It returns ErrDecryptFailed
// when the authentication tag does not verify.
func Decrypt(payload Payload, keyHex string) (string, error) {
	aead, errCipher := newAEAD(keyHex)
	if errCipher != nil {
		return "", errCipher
	}

	iv, errIV := hex.DecodeString(payload.IV)
	if errIV != nil || len(iv) != ivSize {
		return "", fmt.Errorf("secret: malformed iv")
	}
	ciphertext, errData := hex.DecodeString(payload.Data)
	if errData != nil {
		return "", fmt.Errorf("secret: malformed ciphertext")
	}
	tag, errTag := hex.DecodeString(payload.Tag)
	if errTag != nil || len(tag) != tagSize {
		return "", fmt.Errorf("secret: malformed tag")
	}

	plaintext, errOpen := aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if errOpen != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

func newAEAD(keyHex string) (cipher.AEAD, error) {
	key, errDecode := hex.DecodeString(keyHex)
	if errDecode != nil || len(key) != keySize {
		return nil, fmt.Errorf("secret: key must be %d bytes hex encoded", keySize)
	}
	block, errCipher := aes.NewCipher(key)
	if errCipher != nil {
		return nil, fmt.Errorf("secret: cipher init: %w", errCipher)
	}
	aead, errGCM := cipher.NewGCMWithNonceSize(block, ivSize)
	if errGCM != nil {
		return nil, fmt.Errorf("secret: gcm init: %w", errGCM)
	}
	return aead, nil
}
