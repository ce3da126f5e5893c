package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/streamgate/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

// Signer mints and verifies HMAC-signed, time-bounded stream URLs binding
// {video, quality, session}. It is pure and stateless; the secret is fixed
// at construction and never mutated.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a signer keyed by the process-wide signing secret
func NewSigner(secret string) *Signer {
	return &Signer{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// VerifyResult carries the verification outcome and its reason code
type VerifyResult struct {
	Valid  bool
	Reason string
}

// Payload is the canonical signing input. Not persisted; derived per URL.
type Payload struct {
	VideoID       string
	Quality       string
	SessionToken  string
	ExpiresAtUnix int64
}

// canonicalBytes serializes the payload with sorted keys so the same logical
// payload always produces identical bytes regardless of construction order.
func canonicalBytes(p Payload) []byte {
	fields := map[string]string{
		"expires": strconv.FormatInt(p.ExpiresAtUnix, 10),
		"quality": p.Quality,
		"session": p.SessionToken,
		"video":   p.VideoID,
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}

	return []byte(b.String())
}

func (s *Signer) signature(p Payload) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonicalBytes(p))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Sign builds a signed playback URL for one rendition under one session,
// valid for ttl from now.
func (s *Signer) Sign(videoID, quality, sessionToken string, ttl time.Duration) (string, time.Time) {
	expiresAt := s.now().Add(ttl)
	payload := Payload{
		VideoID:       videoID,
		Quality:       quality,
		SessionToken:  sessionToken,
		ExpiresAtUnix: expiresAt.Unix(),
	}

	sig := s.signature(payload)
	metrics.TokensSignedTotal.Inc()

	url := fmt.Sprintf("/stream/%s/%s?token=%s&expires=%d&signature=%s",
		videoID, quality, sessionToken, payload.ExpiresAtUnix, sig)

	return url, expiresAt
}

// Verify checks a presented signature against the expected one. Expired
// URLs are rejected before any HMAC work; signature comparison is
// constant-time. Any single-bit change to video, quality, session or expiry
// invalidates the signature.
func (s *Signer) Verify(videoID, quality, sessionToken string, expiresAtUnix int64, signature string) VerifyResult {
	if s.now().Unix() > expiresAtUnix {
		metrics.RecordTokenVerification(models.ReasonURLExpired)
		return VerifyResult{Valid: false, Reason: models.ReasonURLExpired}
	}

	expected := s.signature(Payload{
		VideoID:       videoID,
		Quality:       quality,
		SessionToken:  sessionToken,
		ExpiresAtUnix: expiresAtUnix,
	})

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		metrics.RecordTokenVerification(models.ReasonInvalidSignature)
		metrics.RecordSecurityEvent("invalid_signature")
		return VerifyResult{Valid: false, Reason: models.ReasonInvalidSignature}
	}

	metrics.RecordTokenVerification("valid")
	return VerifyResult{Valid: true}
}
