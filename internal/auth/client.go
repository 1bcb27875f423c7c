package auth

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"time"
)

// Machine client payload failures. The middleware maps each to a status.
var (
	ErrPayloadMissing    = errors.New("missing encrypted content")
	ErrPayloadEncoding   = errors.New("invalid encrypted content format")
	ErrPayloadCiphertext = errors.New("decryption failed: invalid ciphertext")
	ErrPayloadDecrypt    = errors.New("internal decryption error")
	ErrPayloadFormat     = errors.New("invalid client data format")
	ErrPayloadStale      = errors.New("invalid client data")
)

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)

// ClientPayload is the decrypted body of a machine-client request.
type ClientPayload struct {
	Timestamp int64
	Raw       json.RawMessage
}

// Decode unmarshals the payload into v.
func (p *ClientPayload) Decode(v any) error {
	return json.Unmarshal(p.Raw, v)
}

// ClientDecrypter opens RSA-OAEP(SHA-256) payloads and enforces the replay window.
type ClientDecrypter struct {
	key    *rsa.PrivateKey
	window time.Duration
	now    func() time.Time
}

func NewClientDecrypter(key *rsa.PrivateKey, window time.Duration) *ClientDecrypter {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &ClientDecrypter{key: key, window: window, now: time.Now}
}

// LoadPrivateKeyFile reads a PEM encoded PKCS#1 or PKCS#8 RSA key.
func LoadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}

func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("private key: no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key: not an RSA key")
	}
	return key, nil
}

// Open decodes, decrypts and validates the header value.
func (d *ClientDecrypter) Open(headerValue string) (*ClientPayload, error) {
	if headerValue == "" {
		return nil, ErrPayloadMissing
	}
	if !base64Pattern.MatchString(headerValue) {
		return nil, ErrPayloadEncoding
	}
	ciphertext, err := base64.StdEncoding.DecodeString(headerValue)
	if err != nil {
		return nil, ErrPayloadEncoding
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, d.key, ciphertext, nil)
	if err != nil {
		if errors.Is(err, rsa.ErrDecryption) || errors.Is(err, rsa.ErrMessageTooLong) {
			return nil, ErrPayloadCiphertext
		}
		return nil, fmt.Errorf("%w: %v", ErrPayloadDecrypt, err)
	}

	var envelope struct {
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(plaintext, &envelope); err != nil {
		return nil, ErrPayloadFormat
	}
	if envelope.Timestamp == nil || *envelope.Timestamp <= 0 {
		return nil, ErrPayloadStale
	}
	ts := int64(*envelope.Timestamp)
	skew := math.Abs(float64(d.now().UnixMilli() - ts))
	if skew >= float64(d.window.Milliseconds()) {
		return nil, ErrPayloadStale
	}
	return &ClientPayload{Timestamp: ts, Raw: plaintext}, nil
}
