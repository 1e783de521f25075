package mimetypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		detected string
		expected MIME
		want     bool
	}{
		{"Plain text with charset", "text/plain; charset=utf-8", TextPlain, true},
		{"JSON with charset", "application/json; charset=utf-8", ApplicationJSON, true},
		{"PDF", "application/pdf", ApplicationPDF, true},
		{"PNG", "image/png", ImagePNG, true},
		{"Mismatch", "text/plain; charset=utf-8", ApplicationJSON, false},
		{"Unknown type", "application/octet-stream", TextPlain, false},
		{"Invalid MIME", "not a mime", TextPlain, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Matches(tt.detected, tt.expected)
			require.Equal(t, tt.want, ok)
		})
	}
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		detected string
		want     MIME
		allowed  bool
	}{
		{"image/jpeg", ImageJPEG, true},
		{"text/plain; charset=utf-8", TextPlain, true},
		{"text/html; charset=utf-8", "text/html", false},
		{"image/svg+xml", "image/svg+xml", false},
		{"application/x-elf", "application/x-elf", false},
		{"", Unknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.detected, func(t *testing.T) {
			got, ok := Allowed(tt.detected)
			require.Equal(t, tt.allowed, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
