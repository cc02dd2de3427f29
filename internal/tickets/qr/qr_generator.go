package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"

	"ms-ticket-lifecycle/internal/models"
)

var ErrMalformedPayload = errors.New("malformed qr payload")

type QRGenerator struct {
	secret []byte
	size   int
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:], size: 256}
}

// GenerateEncryptedQR renders the sealed anchor as a PNG.
func (q *QRGenerator) GenerateEncryptedQR(anchor models.TicketAnchor) ([]byte, error) {
	sealed, err := q.Seal(anchor)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(sealed, qrcode.Medium, q.size)
}

// Seal encrypts the anchor into the string a QR code carries.
func (q *QRGenerator) Seal(anchor models.TicketAnchor) (string, error) {
	data, err := json.Marshal(anchor)
	if err != nil {
		return "", err
	}
	return encryptAES(data, q.secret)
}

// Open reverses Seal. Scanners use it to read a code back.
func (q *QRGenerator) Open(sealed string) (*models.TicketAnchor, error) {
	data, err := decryptAES(sealed, q.secret)
	if err != nil {
		return nil, err
	}
	var anchor models.TicketAnchor
	if err := json.Unmarshal(data, &anchor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &anchor, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(sealed string, key []byte) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, ErrMalformedPayload
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return data, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
