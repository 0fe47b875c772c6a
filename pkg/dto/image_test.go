package dto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeImage(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}
	std := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		payload string
		max     int
		want    []byte
		wantErr bool
	}{
		{"plain base64", std, 0, raw, false},
		{"data uri", "data:image/jpeg;base64," + std, 0, raw, false},
		{"surrounding whitespace", "  " + std + "\n", 0, raw, false},
		{"unpadded", base64.RawStdEncoding.EncodeToString(raw[:4]), 0, raw[:4], false},
		{"url safe", base64.RawURLEncoding.EncodeToString([]byte{0xfb, 0xff}), 0, []byte{0xfb, 0xff}, false},
		{"empty", "", 0, nil, true},
		{"empty data uri", "data:image/png;base64,", 0, nil, true},
		{"data uri without comma", "data:image/png;base64", 0, nil, true},
		{"not base64", "%%%not-base64%%%", 0, nil, true},
		{"too large", std, 3, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeImage(tt.payload, tt.max)
			if tt.wantErr {
				assert.Error(t, err, "got %v", got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DecodeImage("", 0)
	assert.ErrorIs(t, err, ErrEmptyImage)
}
