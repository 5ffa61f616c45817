package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"checkout-service/internal/models"
)

const encPrefix = "enc:v1:"

// PayloadCodec serializes the opaque order blob. With no key configured it
// writes plain JSON; with a key it seals the JSON with AES-GCM so buyer
// details are not readable straight out of a database dump.
type PayloadCodec struct {
	key []byte
}

// NewPayloadCodec derives a 256-bit key from the configured secret.
// An empty secret disables encryption.
func NewPayloadCodec(secret string) *PayloadCodec {
	if secret == "" {
		return &PayloadCodec{}
	}
	sum := sha256.Sum256([]byte(secret))
	return &PayloadCodec{key: sum[:]}
}

func (c *PayloadCodec) Encode(payload models.OrderPayload) (string, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order payload: %w", err)
	}
	if c.key == nil {
		return string(plain), nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plain, nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *PayloadCodec) Decode(raw string) (models.OrderPayload, error) {
	var payload models.OrderPayload

	if !strings.HasPrefix(raw, encPrefix) {
		err := json.Unmarshal([]byte(raw), &payload)
		return payload, err
	}

	if c.key == nil {
		return payload, fmt.Errorf("encrypted payload but no data key configured")
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, encPrefix))
	if err != nil {
		return payload, fmt.Errorf("failed to decode order payload: %w", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return payload, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return payload, err
	}
	if len(sealed) < gcm.NonceSize() {
		return payload, fmt.Errorf("order payload too short")
	}
	plain, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return payload, fmt.Errorf("failed to open order payload: %w", err)
	}

	err = json.Unmarshal(plain, &payload)
	return payload, err
}
