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
	"time"

	"dgc-transports/internal/domain"
	"dgc-transports/internal/models"

	"github.com/skip2/go-qrcode"
)

// Payload is what a boarding-pass QR code carries once decrypted.
type Payload struct {
	PNR        string `json:"pnr"`
	TemplateID int64  `json:"template_id"`
	TripDate   string `json:"trip_date"`
	SeatNumber int    `json:"seat_number"`
	IssuedAt   int64  `json:"issued_at"`
}

func PayloadFor(b models.Booking, issued time.Time) Payload {
	return Payload{
		PNR:        b.PNR,
		TemplateID: b.TemplateID,
		TripDate:   b.TripDate,
		SeatNumber: b.SeatNumber,
		IssuedAt:   issued.Unix(),
	}
}

// Matches reports whether the payload was issued for b.
func (p Payload) Matches(b models.Booking) bool {
	return p.PNR == b.PNR && p.TemplateID == b.TemplateID && p.TripDate == b.TripDate && p.SeatNumber == b.SeatNumber
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// Encrypt seals p with AES-GCM and returns URL-safe base64 text.
func (g *Generator) Encrypt(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	gcm, err := g.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// GenerateEncryptedQR renders the encrypted payload as a 256px PNG.
func (g *Generator) GenerateEncryptedQR(p Payload) ([]byte, error) {
	encrypted, err := g.Encrypt(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// DecryptQRData opens text scanned from a boarding pass. Tampered or
// foreign codes are reported as validation errors.
func (g *Generator) DecryptQRData(text string) (Payload, error) {
	raw, err := base64.URLEncoding.DecodeString(text)
	if err != nil {
		return Payload{}, domain.Validation("qr", "not a boarding pass code")
	}
	gcm, err := g.aead()
	if err != nil {
		return Payload{}, err
	}
	if len(raw) < gcm.NonceSize() {
		return Payload{}, domain.Validation("qr", "code is truncated")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return Payload{}, domain.Validation("qr", "code was not issued by this service")
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, domain.Validation("qr", fmt.Sprintf("malformed payload: %v", err))
	}
	if p.PNR == "" {
		return Payload{}, domain.Validation("qr", "payload has no pnr")
	}
	return p, nil
}

func (g *Generator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.New("aes-gcm unavailable")
	}
	return gcm, nil
}
