// Package signing issues HMAC signed download links so an uploaded file can be
// fetched for a short time without a session.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for inputs.
func (s *Signer) Sign(fileID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", fileID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one.
func (s *Signer) Validate(fileID, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(fileID, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Link is a signed download URL.
type Link struct {
	URL     string    `json:"url"`
	Expires time.Time `json:"expiresAt"`
}

// SignedLink builds base?file=..&expires=..&signature=.. valid for ttl.
func (s *Signer) SignedLink(base, fileID string, ttl time.Duration) Link {
	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("file", fileID)
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.Sign(fileID, expires))
	return Link{URL: base + "?" + q.Encode(), Expires: time.Unix(expires, 0).UTC()}
}

// Verify checks a signed link's parameters, including expiry.
func (s *Signer) Verify(fileID, expires, signature string) error {
	if fileID == "" || expires == "" || signature == "" {
		return apperr.Invalid("missing signed link parameters")
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return apperr.Invalid("invalid expires")
	}
	if time.Unix(exp, 0).Before(s.now()) {
		return fmt.Errorf("%w: link expired", apperr.ErrUnauthorized)
	}
	if !s.Validate(fileID, expires, signature) {
		return fmt.Errorf("%w: invalid signature", apperr.ErrUnauthorized)
	}
	return nil
}
