package signing

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	sig := s.Sign("file123", 1700000000)
	require.NotEmpty(t, sig)

	assert.True(t, s.Validate("file123", "1700000000", sig))
	assert.False(t, s.Validate("wrong", "1700000000", sig))
	assert.False(t, s.Validate("file123", "42", sig))
	assert.False(t, s.Validate("file123", "nan", sig))
}

func TestSignedLinkRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewSigner([]byte("k"))
	s.now = func() time.Time { return now }

	link := s.SignedLink("/api/files/download", "f-1", 5*time.Minute)
	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, "/api/files/download", u.Path)
	q := u.Query()
	assert.Equal(t, "f-1", q.Get("file"))
	assert.Equal(t, now.Add(5*time.Minute), link.Expires)

	require.NoError(t, s.Verify(q.Get("file"), q.Get("expires"), q.Get("signature")))

	err = s.Verify("f-2", q.Get("expires"), q.Get("signature"))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	s.now = func() time.Time { return now.Add(time.Hour) }
	err = s.Verify(q.Get("file"), q.Get("expires"), q.Get("signature"))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	assert.ErrorIs(t, s.Verify("", "", ""), apperr.ErrInvalid)
}
