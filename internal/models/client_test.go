package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInGoodStanding(t *testing.T) {
	now := time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)
	today := DateOf(now)

	tests := []struct {
		name   string
		client Client
		want   bool
	}{
		{"active, expires later", Client{Active: true, ExpirationDate: today.AddDate(0, 1, 0)}, true},
		{"active, expires today", Client{Active: true, ExpirationDate: today}, true},
		{"active, expired yesterday", Client{Active: true, ExpirationDate: today.AddDate(0, 0, -1)}, false},
		{"inactive, valid date", Client{Active: false, ExpirationDate: today.AddDate(1, 0, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.client.InGoodStanding(now))
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2027-01-31")
	require.NoError(t, err)
	assert.Equal(t, 2027, d.Year())
	assert.Equal(t, time.January, d.Month())
	assert.Equal(t, 31, d.Day())

	_, err = ParseDate("31/01/2027")
	assert.Error(t, err, "expected error for non ISO date")
}
