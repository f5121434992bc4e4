package tokenid

import (
	"strings"
	"testing"
)

func TestSequential(t *testing.T) {
	if got := Sequential(1); got != "1" {
		t.Errorf("Sequential(1) = %q, want %q", got, "1")
	}
	if got := Sequential(1042); got != "1042" {
		t.Errorf("Sequential(1042) = %q, want %q", got, "1042")
	}
}

func TestIdentity_Padding(t *testing.T) {
	const issuedAt = 1700000000

	tests := []struct {
		counter uint64
		want    string
	}{
		{7, "1700000000007"},       // 1 digit, padded with "00"
		{42, "1700000000042"},      // 2 digits, padded with "0"
		{123, "1700000000123"},     // 3 digits, no padding
		{1234, "17000000001234"},   // 4 digits, no padding
		{98765, "170000000098765"}, // 5 digits, no padding
	}

	for _, tt := range tests {
		got := Identity(issuedAt, tt.counter)
		if got != tt.want {
			t.Errorf("Identity(%d, %d) = %q, want %q", issuedAt, tt.counter, got, tt.want)
		}
	}
}

func TestIdentity_DistinctAcrossCounters(t *testing.T) {
	seen := make(map[string]bool)
	for c := uint64(1); c <= 2000; c++ {
		id := Identity(1700000000, c)
		if seen[id] {
			t.Fatalf("duplicate identity id %q at counter %d", id, c)
		}
		seen[id] = true
	}
}

func TestURLHash(t *testing.T) {
	h := URLHash("https://example.com/passport.png")
	if h == "" {
		t.Fatal("URLHash returned empty string")
	}
	if h != URLHash("https://example.com/passport.png") {
		t.Error("URLHash is not deterministic")
	}
	if h == URLHash("https://example.com/other.png") {
		t.Error("URLHash collides for distinct URLs")
	}
	if strings.ContainsAny(h, "0OIl+/=") {
		t.Errorf("URLHash %q contains non-base58 characters", h)
	}
}
