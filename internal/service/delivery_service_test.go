package service

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/docvault-api/internal/dto"
	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/pkg/config"
	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
	"github.com/noah-isme/docvault-api/pkg/middleware/requestid"
	"github.com/noah-isme/docvault-api/pkg/signedurl"
)

type deliveryMetricsStub struct {
	mu        sync.Mutex
	downloads map[string]int
	drift     map[string]int
}

func newDeliveryMetricsStub() *deliveryMetricsStub {
	return &deliveryMetricsStub{downloads: map[string]int{}, drift: map[string]int{}}
}

func (m *deliveryMetricsStub) RecordDownload(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads[mode]++
}

func (m *deliveryMetricsStub) RecordStorageDrift(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drift[kind]++
}

type ledgerStub struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (l *ledgerStub) Claim(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimed == nil {
		l.claimed = map[string]bool{}
	}
	if l.claimed[token] {
		return false, nil
	}
	l.claimed[token] = true
	return true, nil
}

type deliveryFixture struct {
	*documentFixture
	signer   *signedurl.Signer
	metrics  *deliveryMetricsStub
	delivery *DeliveryService
}

func newDeliveryFixture(t *testing.T, threshold int64, ledger onceClaimer) *deliveryFixture {
	t.Helper()
	f := newDocumentFixture(t, config.RetentionRetain)
	signer, err := signedurl.NewSigner("delivery-test-secret", time.Minute)
	require.NoError(t, err)
	metrics := newDeliveryMetricsStub()
	svc := NewDeliveryService(f.store, f.archivist, f.blobs, signer, ledger, f.activity, metrics, zap.NewNop(), DeliveryConfig{
		LargeFileThreshold: threshold,
		PublicBaseURL:      "https://files.example.com/",
		APIPrefix:          "/api/v1",
	})
	return &deliveryFixture{documentFixture: f, signer: signer, metrics: metrics, delivery: svc}
}

func readAll(t *testing.T, body io.ReadCloser) string {
	t.Helper()
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return string(data)
}

func TestDeliveryThresholdIsInclusiveOnStreamSide(t *testing.T) {
	content := strings.Repeat("x", 64)
	f := newDeliveryFixture(t, int64(len(content)), nil)
	doc := f.create(t, tenantA, projectA, "exact.txt", content)

	delivery, err := f.delivery.RequestDownload(context.Background(), member(tenantA), doc.ID)
	require.NoError(t, err)
	stream, ok := delivery.(StreamDelivery)
	require.True(t, ok, "size equal to threshold streams")
	assert.Equal(t, content, readAll(t, stream.Body))
	assert.Equal(t, "exact.txt", stream.Filename)
	assert.Equal(t, int64(64), stream.Size)
	assert.Equal(t, 1, f.metrics.downloads[DeliveryModeStream])
	assert.Contains(t, f.activity.actions(), models.ActivityDocumentDownloaded)
}

func TestDeliveryAboveThresholdIssuesSignedURL(t *testing.T) {
	content := strings.Repeat("y", 65)
	f := newDeliveryFixture(t, 64, nil)
	doc := f.create(t, tenantA, projectA, "large.bin", content)

	delivery, err := f.delivery.RequestDownload(context.Background(), member(tenantA), doc.ID)
	require.NoError(t, err)
	link, ok := delivery.(SignedURLDelivery)
	require.True(t, ok, "size above threshold returns a link")
	assert.Equal(t, DeliveryModeSignedURL, link.Mode())
	assert.True(t, strings.HasPrefix(link.URL, "https://files.example.com/api/v1/documents/"+doc.ID+"/file?"))
	assert.WithinDuration(t, time.Now().Add(time.Minute), link.ExpiresAt, 2*time.Second)

	parsed, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, tenantA, parsed.Query().Get(signedurl.ParamTenant))

	stream, err := f.delivery.ResolveSignedDownload(context.Background(), doc.ID, parsed.Query())
	require.NoError(t, err)
	assert.Equal(t, content, readAll(t, stream.Body))
	assert.Contains(t, f.activity.actions(), models.ActivityDocumentSignedDownloaded)
}

func TestDeliveryMissingBlobIsFileNotFound(t *testing.T) {
	for _, size := range []int{8, 128} {
		f := newDeliveryFixture(t, 64, nil)
		doc := f.create(t, tenantA, projectA, "gone.txt", strings.Repeat("z", size))
		f.blobs.mu.Lock()
		delete(f.blobs.objects, doc.FilePath)
		f.blobs.mu.Unlock()

		_, err := f.delivery.RequestDownload(context.Background(), member(tenantA), doc.ID)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrFileNotFound.Code, appErrors.FromError(err).Code)
		assert.Equal(t, 1, f.metrics.drift["document"])
	}
}

func TestDeliveryDriftLogCarriesRequestID(t *testing.T) {
	f := newDeliveryFixture(t, 64, nil)
	core, logs := observer.New(zapcore.ErrorLevel)
	f.delivery.logger = zap.New(core)
	doc := f.create(t, tenantA, projectA, "gone.txt", "vanishing")
	f.blobs.mu.Lock()
	delete(f.blobs.objects, doc.FilePath)
	f.blobs.mu.Unlock()

	ctx := requestid.NewContext(context.Background(), "req-drift-1")
	_, err := f.delivery.RequestDownload(ctx, member(tenantA), doc.ID)
	require.Error(t, err)

	entries := logs.FilterMessage("storage drift: blob missing for live record").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-drift-1", fields["request_id"])
	assert.Equal(t, doc.ID, fields["id"])
}

func TestDeliveryCrossTenantIsNotFound(t *testing.T) {
	f := newDeliveryFixture(t, 64, nil)
	doc := f.create(t, tenantA, projectA, "a.txt", "private")

	_, err := f.delivery.RequestDownload(context.Background(), member(tenantB), doc.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDeliverySignedURLRejections(t *testing.T) {
	f := newDeliveryFixture(t, 4, nil)
	docA := f.create(t, tenantA, projectA, "a.bin", "alpha content")
	docB := f.create(t, tenantA, projectA, "b.bin", "beta content")

	params, err := f.signer.Issue(tenantA, docA.ID)
	require.NoError(t, err)

	_, err = f.delivery.ResolveSignedDownload(context.Background(), docB.ID, params.Query())
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized, "signature bound to another document")

	tampered := params.Query()
	tampered.Set(signedurl.ParamTenant, tenantB)
	_, err = f.delivery.ResolveSignedDownload(context.Background(), docA.ID, tampered)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized, "tenant is covered by the signature")

	_, err = f.delivery.ResolveSignedDownload(context.Background(), docA.ID, url.Values{})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	f.delivery.now = func() time.Time { return params.ExpiresAt.Add(time.Second) }
	_, err = f.delivery.ResolveSignedDownload(context.Background(), docA.ID, params.Query())
	require.Error(t, err)
	assert.Equal(t, "signed url expired", appErrors.FromError(err).Message)
}

func TestDeliverySignedURLIsReusableByDefault(t *testing.T) {
	f := newDeliveryFixture(t, 4, nil)
	doc := f.create(t, tenantA, projectA, "a.bin", "reusable content")
	params, err := f.signer.Issue(tenantA, doc.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		stream, err := f.delivery.ResolveSignedDownload(context.Background(), doc.ID, params.Query())
		require.NoError(t, err)
		assert.Equal(t, "reusable content", readAll(t, stream.Body))
	}
}

func TestDeliverySingleUseRejectsReplay(t *testing.T) {
	f := newDeliveryFixture(t, 4, &ledgerStub{})
	doc := f.create(t, tenantA, projectA, "a.bin", "once only")
	params, err := f.signer.Issue(tenantA, doc.ID)
	require.NoError(t, err)

	stream, err := f.delivery.ResolveSignedDownload(context.Background(), doc.ID, params.Query())
	require.NoError(t, err)
	readAll(t, stream.Body)

	_, err = f.delivery.ResolveSignedDownload(context.Background(), doc.ID, params.Query())
	require.Error(t, err)
	assert.Equal(t, "signed url already used", appErrors.FromError(err).Message)
}

func TestDeliverySignedURLForDeletedDocument(t *testing.T) {
	f := newDeliveryFixture(t, 4, nil)
	doc := f.create(t, tenantA, projectA, "a.bin", "soon deleted")
	params, err := f.signer.Issue(tenantA, doc.ID)
	require.NoError(t, err)
	require.NoError(t, f.service.Delete(context.Background(), member(tenantA), doc.ID))

	_, err = f.delivery.ResolveSignedDownload(context.Background(), doc.ID, params.Query())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDeliveryVersionDownloadRoundTrip(t *testing.T) {
	f := newDeliveryFixture(t, 4, nil)
	doc := f.create(t, tenantA, projectA, "contract.txt", "original terms")
	_, err := f.service.Update(context.Background(), member(tenantA), doc.ID, dto.UpdateDocumentRequest{}, fileUpload("contract-v2.txt", "amended terms"))
	require.NoError(t, err)

	versions, err := f.archivist.ListVersions(context.Background(), member(tenantA), doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	stream, err := f.delivery.RequestVersionDownload(context.Background(), member(tenantA), doc.ID, versions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "original terms", readAll(t, stream.Body), "version bytes stream even above the threshold")
	assert.Equal(t, "contract.txt", stream.Filename)

	_, err = f.delivery.RequestVersionDownload(context.Background(), member(tenantB), doc.ID, versions[0].ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.delivery.RequestVersionDownload(context.Background(), member(tenantA), doc.ID, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	f.blobs.mu.Lock()
	delete(f.blobs.objects, versions[0].FilePath)
	f.blobs.mu.Unlock()
	_, err = f.delivery.RequestVersionDownload(context.Background(), member(tenantA), doc.ID, versions[0].ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFileNotFound.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, f.metrics.drift["version"])
}
