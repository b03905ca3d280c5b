package signedurl

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Query parameter names carried by a signed download link.
const (
	ParamTenant    = "tenant"
	ParamExpires   = "expires"
	ParamSignature = "signature"
)

var (
	ErrMalformed        = errors.New("signed url: malformed parameters")
	ErrExpired          = errors.New("signed url: expired")
	ErrInvalidSignature = errors.New("signed url: invalid signature")
)

const keyInfo = "docvault/signed-download/v1"

// Params are the values a signed link binds together.
type Params struct {
	TenantID   string
	DocumentID string
	ExpiresAt  time.Time
	Signature  string
}

// Query encodes the tenant, expiry and signature for a download URL.
func (p Params) Query() url.Values {
	q := url.Values{}
	q.Set(ParamTenant, p.TenantID)
	q.Set(ParamExpires, strconv.FormatInt(p.ExpiresAt.Unix(), 10))
	q.Set(ParamSignature, p.Signature)
	return q
}

// ParseQuery reads link parameters for documentID taken from the request path.
func ParseQuery(documentID string, q url.Values) (Params, error) {
	tenantID := strings.TrimSpace(q.Get(ParamTenant))
	sig := strings.TrimSpace(q.Get(ParamSignature))
	rawExp := strings.TrimSpace(q.Get(ParamExpires))
	if documentID == "" || tenantID == "" || sig == "" || rawExp == "" {
		return Params{}, ErrMalformed
	}
	exp, err := strconv.ParseInt(rawExp, 10, 64)
	if err != nil || exp <= 0 {
		return Params{}, ErrMalformed
	}
	return Params{
		TenantID:   tenantID,
		DocumentID: documentID,
		ExpiresAt:  time.Unix(exp, 0),
		Signature:  sig,
	}, nil
}

// Signer issues and verifies HMAC-SHA256 capability links for one document download.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner derives the signing key from secret and sets the link lifetime.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret missing")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &Signer{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue signs a link for documentID owned by tenantID.
func (s *Signer) Issue(tenantID, documentID string) (Params, error) {
	if tenantID == "" || documentID == "" {
		return Params{}, fmt.Errorf("tenantID and documentID required")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	return Params{
		TenantID:   tenantID,
		DocumentID: documentID,
		ExpiresAt:  expiresAt,
		Signature:  s.sign(tenantID, documentID, expiresAt.Unix()),
	}, nil
}

// Verify checks the signature and, independently, that now is not past the expiry.
func (s *Signer) Verify(p Params, now time.Time) error {
	if p.TenantID == "" || p.DocumentID == "" || p.Signature == "" {
		return ErrMalformed
	}
	expected := s.sign(p.TenantID, p.DocumentID, p.ExpiresAt.Unix())
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(p.Signature))) {
		return ErrInvalidSignature
	}
	if now.After(p.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

// Route is the path a link for documentID resolves to, relative to the API prefix.
func Route(documentID string) string {
	return "/documents/" + documentID + "/file"
}

func (s *Signer) sign(tenantID, documentID string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write([]byte(canonical(tenantID, documentID, expires)))
	return hex.EncodeToString(mac.Sum(nil))
}

func canonical(tenantID, documentID string, expires int64) string {
	return strings.Join([]string{
		"GET",
		Route(documentID),
		tenantID,
		documentID,
		strconv.FormatInt(expires, 10),
	}, "\n")
}
