package signing

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	sig := s.Sign("file123", 1700000000)
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, s.Sign("file123", 1700000000))
	assert.NotEqual(t, sig, s.Sign("file124", 1700000000))
	assert.NotEqual(t, sig, NewSigner([]byte("other")).Sign("file123", 1700000000))
}

func TestLinkRoundTrip(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	link, expires := s.Link("/download", "abc", time.Minute)
	require.True(t, strings.HasPrefix(link, "/download?"))
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 2*time.Second)

	u, err := url.Parse(link)
	require.NoError(t, err)
	id, err := s.Verify(u.Query())
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestVerifyRejects(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	link, _ := s.Link("/download", "abc", time.Minute)
	u, err := url.Parse(link)
	require.NoError(t, err)

	tampered := u.Query()
	tampered.Set("file", "xyz")
	_, err = s.Verify(tampered)
	assert.ErrorIs(t, err, ErrBadSignature)

	missing := u.Query()
	missing.Del("signature")
	_, err = s.Verify(missing)
	assert.ErrorIs(t, err, ErrMissingParams)

	bad := u.Query()
	bad.Set("expires", "soon")
	_, err = s.Verify(bad)
	assert.ErrorIs(t, err, ErrBadSignature)

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = s.Verify(u.Query())
	assert.ErrorIs(t, err, ErrExpired)
}
