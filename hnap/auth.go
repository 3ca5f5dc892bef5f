package hnap

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	// Namespace prefixes every action in the SOAPAction header and the
	// signed auth message.
	Namespace = "http://purenetworks.com/HNAP1/"

	// AnonymousKey signs requests sent before a login handshake completed.
	AnonymousKey = "withoutloginkey"

	// timestampModulus keeps the millisecond timestamp within the width the
	// modem accepts.
	timestampModulus = 2000000000000
)

// Session is the state established by a successful login. The zero value is
// an anonymous session.
type Session struct {
	UID        string
	PrivateKey string
}

// Authenticated reports whether the session came out of a completed handshake.
func (s Session) Authenticated() bool { return s.PrivateKey != "" }

// Key returns the key used to sign requests in this session.
func (s Session) Key() string {
	if s.PrivateKey == "" {
		return AnonymousKey
	}
	return s.PrivateKey
}

// Signer computes HNAP_AUTH header values.
type Signer struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s Signer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Timestamp returns the current epoch milliseconds modulo 2e12 as a string.
func (s Signer) Timestamp() string {
	ms := s.now().UnixNano() / int64(time.Millisecond)
	return strconv.FormatInt(ms%timestampModulus, 10)
}

// AuthHeader returns "<HMAC> <timestamp>" for a request carrying action,
// signed with key.
func (s Signer) AuthHeader(key, action string) string {
	ts := s.Timestamp()
	return HMACMD5(key, ts+Namespace+action) + " " + ts
}

// HMACMD5 returns the upper case hex HMAC-MD5 of message keyed with key, the
// digest used throughout the HNAP handshake.
func HMACMD5(key, message string) string {
	mac := hmac.New(md5.New, []byte(key))
	mac.Write([]byte(message))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// derivePrivateKey turns the login challenge into the session key.
func derivePrivateKey(publicKey, password, challenge string) string {
	return HMACMD5(publicKey+password, challenge)
}

// loginPassword proves knowledge of the session key to the modem.
func loginPassword(privateKey, challenge string) string {
	return HMACMD5(privateKey, challenge)
}
