package dto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyImage = errors.New("image is empty")

// DecodeImage decodes a base64 image payload, with or without a
// "data:image/...;base64," prefix. maxBytes <= 0 disables the size check.
func DecodeImage(payload string, maxBytes int) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		i := strings.Index(payload, ",")
		if i < 0 {
			return nil, fmt.Errorf("malformed data URI")
		}
		payload = payload[i+1:]
	}
	if payload == "" {
		return nil, ErrEmptyImage
	}
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+2 {
		return nil, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients send unpadded or URL-safe base64.
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
			data, err = raw, nil
		} else if url, urlErr := base64.RawURLEncoding.DecodeString(strings.TrimRight(payload, "=")); urlErr == nil {
			data, err = url, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}
	return data, nil
}
