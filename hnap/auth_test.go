package hnap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.Unix(0, ms*int64(time.Millisecond)) }
}

func TestSigner_AuthHeader(t *testing.T) {
	signer := Signer{Now: fixedClock(1234567890123)}

	assert.Equal(t, "67887FBEED3A2865FAC27159E44EB3A4 1234567890123", signer.AuthHeader("ABC", "Login"))
	assert.Equal(t, "127B1F672D3767D95990113689A67E12 1234567890123", signer.AuthHeader(AnonymousKey, "Login"))
}

func TestSigner_Timestamp(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{name: "below modulus", ms: 1234567890123, want: "1234567890123"},
		{name: "wraps at modulus", ms: 2000000000005, want: "5"},
		{name: "current epoch", ms: 1760000000000, want: "1760000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Signer{Now: fixedClock(tt.ms)}.Timestamp())
		})
	}
}

func TestHandshakeDigests(t *testing.T) {
	privateKey := derivePrivateKey("PUBKEY", "motorola", "CHALLENGE1")
	assert.Equal(t, "42569D9DC94EE75A9BC48F57565A3A4F", privateKey)
	assert.Equal(t, "1FC103D1BF2ABA5BB9D9A51BC3025470", loginPassword(privateKey, "CHALLENGE1"))
}

func TestSession_Key(t *testing.T) {
	assert.Equal(t, AnonymousKey, Session{}.Key())
	assert.False(t, Session{}.Authenticated())

	s := Session{UID: "uid", PrivateKey: "KEY"}
	assert.Equal(t, "KEY", s.Key())
	assert.True(t, s.Authenticated())
}
