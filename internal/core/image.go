package core

import (
	"encoding/base64"
	"strings"
)

// DefaultMaxImageBytes is the decoded size ceiling for one image (5 MiB).
const DefaultMaxImageBytes = 5 << 20

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// ImageCodec decodes base64 image payloads and enforces the size ceiling.
// It performs no I/O.
type ImageCodec struct {
	MaxBytes int
}

// NewImageCodec returns a codec with the given ceiling, or the default when
// maxBytes is not positive.
func NewImageCodec(maxBytes int) ImageCodec {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return ImageCodec{MaxBytes: maxBytes}
}

// Decode returns the image bytes. A "data:<mime>;base64," prefix is accepted.
// Fails with ErrInvalidEncoding for malformed input and ErrPayloadTooLarge when
// the decoded size exceeds the ceiling. Exactly MaxBytes is accepted.
func (c ImageCodec) Decode(payload string) ([]byte, error) {
	s := strings.TrimSpace(payload)
	if strings.HasPrefix(s, "data:") {
		_, data, ok := strings.Cut(s, ";base64,")
		if !ok {
			return nil, ErrInvalidEncoding
		}
		s = data
	}
	s = lineBreaks.Replace(s)
	if s == "" {
		return nil, ErrInvalidEncoding
	}

	// Reject before allocating when the payload cannot fit.
	if base64.RawStdEncoding.DecodedLen(len(strings.TrimRight(s, "="))) > c.limit() {
		return nil, ErrPayloadTooLarge
	}

	enc := base64.StdEncoding
	if !strings.HasSuffix(s, "=") && len(s)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	data, err := enc.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if len(data) > c.limit() {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}

func (c ImageCodec) limit() int {
	if c.MaxBytes <= 0 {
		return DefaultMaxImageBytes
	}
	return c.MaxBytes
}
