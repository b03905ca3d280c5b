package signedurl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	s, err := NewSigner("secret", 5*time.Minute)
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestSigner(t, now)

	p, err := s.Issue("tenant-a", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(5*time.Minute), p.ExpiresAt)
	assert.Len(t, p.Signature, 64)

	parsed, err := ParseQuery("doc-1", p.Query())
	require.NoError(t, err)
	require.NoError(t, s.Verify(parsed, now.Add(time.Minute)))
}

func TestVerifyRejectsExpiredEvenWithValidSignature(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestSigner(t, now)
	p, err := s.Issue("tenant-a", "doc-1")
	require.NoError(t, err)

	assert.NoError(t, s.Verify(p, p.ExpiresAt))
	assert.ErrorIs(t, s.Verify(p, p.ExpiresAt.Add(time.Second)), ErrExpired)
}

func TestVerifyRejectsReplayAgainstOtherDocument(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, now)
	p, err := s.Issue("tenant-a", "doc-1")
	require.NoError(t, err)

	replayed, err := ParseQuery("doc-2", p.Query())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Verify(replayed, now), ErrInvalidSignature)
}

func TestVerifyRejectsTamperedTenantAndExpiry(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, now)
	p, err := s.Issue("tenant-a", "doc-1")
	require.NoError(t, err)

	otherTenant := p
	otherTenant.TenantID = "tenant-b"
	assert.ErrorIs(t, s.Verify(otherTenant, now), ErrInvalidSignature)

	extended := p
	extended.ExpiresAt = p.ExpiresAt.Add(time.Hour)
	assert.ErrorIs(t, s.Verify(extended, now), ErrInvalidSignature)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, now)
	other, err := NewSigner("another-secret", time.Minute)
	require.NoError(t, err)

	p, err := other.Issue("tenant-a", "doc-1")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Verify(p, now), ErrInvalidSignature)
}

func TestParseQueryRejectsMissingValues(t *testing.T) {
	s := newTestSigner(t, time.Now())
	p, err := s.Issue("tenant-a", "doc-1")
	require.NoError(t, err)

	q := p.Query()
	q.Del(ParamSignature)
	_, err = ParseQuery("doc-1", q)
	assert.ErrorIs(t, err, ErrMalformed)

	q = p.Query()
	q.Set(ParamExpires, "tomorrow")
	_, err = ParseQuery("doc-1", q)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner("", time.Minute)
	require.Error(t, err)
}
