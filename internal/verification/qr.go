package verification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// Payload is the JSON encoded into a task QR code.
type Payload struct {
	TaskID     string    `json:"taskId"`
	Location   *Location `json:"location,omitempty"`
	ValidUntil int64     `json:"validUntil"`
	Nonce      string    `json:"nonce"`
	Hash       string    `json:"hash"`
}

// sign returns hex(HMAC-SHA256(secret, "taskId|lat,lng|validUntil")).
func sign(secret []byte, taskID string, loc *Location, validUntil int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(taskID))
	mac.Write([]byte("|"))
	if loc != nil {
		mac.Write([]byte(strconv.FormatFloat(loc.Latitude, 'f', 6, 64)))
		mac.Write([]byte(","))
		mac.Write([]byte(strconv.FormatFloat(loc.Longitude, 'f', 6, 64)))
	}
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(validUntil, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func newPayload(secret []byte, taskID string, loc *Location, validUntil int64) Payload {
	return Payload{
		TaskID:     taskID,
		Location:   loc,
		ValidUntil: validUntil,
		Nonce:      uuid.NewString(),
		Hash:       sign(secret, taskID, loc, validUntil),
	}
}

func (p Payload) validHash(secret []byte) bool {
	want := sign(secret, p.TaskID, p.Location, p.ValidUntil)
	return hmac.Equal([]byte(want), []byte(p.Hash))
}

func (p Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodePayload(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("decode qr payload: %w", err)
	}
	if p.TaskID == "" || p.Hash == "" || p.ValidUntil == 0 {
		return p, fmt.Errorf("decode qr payload: missing fields")
	}
	return p, nil
}

// RenderPNG encodes content as a QR code PNG data URL.
func RenderPNG(content string, size int) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
