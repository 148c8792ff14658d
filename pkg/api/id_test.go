package api

import (
	"testing"
)

func TestNewRequestID(t *testing.T) {
	id := NewRequestID()
	if !ValidateRequestID(id) {
		t.Errorf("NewRequestID() = %q, want valid request ID", id)
	}
	if other := NewRequestID(); other == id {
		t.Errorf("NewRequestID() returned %q twice", id)
	}
}

func TestValidateRequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "req_abcdefghijklmnopqrstuvwx", true},
		{"valid mixed case", "req_AbCdEfGhIjKlMnOpQrStUvWx", true},
		{"valid digits", "req_123456789012345678901234", true},
		{"wrong prefix", "item_abcdefghijklmnopqrstuvwx", false},
		{"no prefix", "abcdefghijklmnopqrstuvwxyz12", false},
		{"too short", "req_abc", false},
		{"too long", "req_abcdefghijklmnopqrstuvwxy", false},
		{"special chars", "req_abcdefghijklmnopqrstuv!@", false},
		{"empty", "", false},
		{"prefix only", "req_", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateRequestID(tt.id); got != tt.want {
				t.Errorf("ValidateRequestID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
