// Package signing issues and checks expiring HMAC-signed download links.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrMissingParams = errors.New("missing signature parameters")
	ErrExpired       = errors.New("link expired")
	ErrBadSignature  = errors.New("invalid signature")
)

// Signer signs file IDs with an expiry.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex HMAC-SHA256 of "fileID:expires".
func (s *Signer) Sign(fileID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(fileID + ":" + strconv.FormatInt(expiresUnix, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Link builds base?file=..&expires=..&signature=.. valid for ttl.
func (s *Signer) Link(base, fileID string, ttl time.Duration) (string, time.Time) {
	expires := s.now().Add(ttl).Truncate(time.Second)
	q := url.Values{}
	q.Set("file", fileID)
	q.Set("expires", strconv.FormatInt(expires.Unix(), 10))
	q.Set("signature", s.Sign(fileID, expires.Unix()))
	return base + "?" + q.Encode(), expires
}

// Verify checks the query of a link produced by Link and returns the file ID.
func (s *Signer) Verify(q url.Values) (string, error) {
	id, expires, sig := q.Get("file"), q.Get("expires"), q.Get("signature")
	if id == "" || expires == "" || sig == "" {
		return "", ErrMissingParams
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return "", ErrBadSignature
	}
	if !hmac.Equal([]byte(s.Sign(id, exp)), []byte(sig)) {
		return "", ErrBadSignature
	}
	if time.Unix(exp, 0).Before(s.now()) {
		return "", ErrExpired
	}
	return id, nil
}
