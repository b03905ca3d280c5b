package service

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/internal/tenant"
	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
	"github.com/noah-isme/docvault-api/pkg/logger"
	"github.com/noah-isme/docvault-api/pkg/signedurl"
	"github.com/noah-isme/docvault-api/pkg/storage"
)

type documentGetter interface {
	Get(ctx context.Context, scope tenant.Scope, id string) (*models.Document, error)
}

type versionLookup interface {
	GetVersion(ctx context.Context, scope tenant.Scope, documentID, versionID string) (*models.Document, *models.DocumentVersion, error)
}

type urlSigner interface {
	Issue(tenantID, documentID string) (signedurl.Params, error)
	Verify(p signedurl.Params, now time.Time) error
}

type onceClaimer interface {
	Claim(ctx context.Context, token string, ttl time.Duration) (bool, error)
}

type deliveryMetrics interface {
	RecordDownload(mode string)
	RecordStorageDrift(kind string)
}

// Delivery is either a StreamDelivery or a SignedURLDelivery.
type Delivery interface {
	Mode() string
	delivery()
}

// StreamDelivery carries the bytes to send inline. The caller closes Body.
type StreamDelivery struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
	Size        int64
}

// Mode implements Delivery.
func (StreamDelivery) Mode() string { return DeliveryModeStream }

func (StreamDelivery) delivery() {}

// SignedURLDelivery points the client at a time bounded download link.
type SignedURLDelivery struct {
	URL       string
	ExpiresAt time.Time
}

// Mode implements Delivery.
func (SignedURLDelivery) Mode() string { return DeliveryModeSignedURL }

func (SignedURLDelivery) delivery() {}

// DeliveryConfig controls the stream versus link decision and link rendering.
type DeliveryConfig struct {
	// LargeFileThreshold is the largest size, inclusive, that is streamed directly.
	LargeFileThreshold int64
	PublicBaseURL      string
	APIPrefix          string
}

// DeliveryService decides how a document's bytes reach the client.
type DeliveryService struct {
	docs     documentGetter
	versions versionLookup
	blobs    storage.Backend
	signer   urlSigner
	ledger   onceClaimer
	activity activitySink
	metrics  deliveryMetrics
	logger   *zap.Logger
	cfg      DeliveryConfig
	now      func() time.Time
}

// NewDeliveryService constructs the service. A nil ledger makes signed links reusable until they expire.
func NewDeliveryService(docs documentGetter, versions versionLookup, blobs storage.Backend, signer urlSigner, ledger onceClaimer, activity activitySink, metrics deliveryMetrics, logger *zap.Logger, cfg DeliveryConfig) *DeliveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LargeFileThreshold <= 0 {
		cfg.LargeFileThreshold = 10 << 20
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	cfg.APIPrefix = "/" + strings.Trim(cfg.APIPrefix, "/")
	return &DeliveryService{
		docs:     docs,
		versions: versions,
		blobs:    blobs,
		signer:   signer,
		ledger:   ledger,
		activity: activity,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RequestDownload streams small files and hands out a signed link for large ones.
func (s *DeliveryService) RequestDownload(ctx context.Context, actor *models.JWTClaims, id string) (Delivery, error) {
	scope, err := scopeFor(actor)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.Get(ctx, scope, id)
	if err != nil {
		return nil, documentLookupError(err)
	}

	var delivery Delivery
	if doc.FileSize <= s.cfg.LargeFileThreshold {
		stream, err := s.open(ctx, doc.FilePath, "document", doc.ID)
		if err != nil {
			return nil, err
		}
		stream.ContentType = doc.MimeType
		stream.Filename = doc.OriginalName
		if stream.Size <= 0 {
			stream.Size = doc.FileSize
		}
		delivery = *stream
	} else {
		link, err := s.issueLink(ctx, scope, doc)
		if err != nil {
			return nil, err
		}
		delivery = *link
	}

	s.recordDownload(ctx, doc, actor.UserID, models.ActivityDocumentDownloaded, delivery.Mode(), nil)
	return delivery, nil
}

// RequestVersionDownload always streams the archived bytes of one version.
func (s *DeliveryService) RequestVersionDownload(ctx context.Context, actor *models.JWTClaims, id, versionID string) (*StreamDelivery, error) {
	scope, err := scopeFor(actor)
	if err != nil {
		return nil, err
	}
	doc, version, err := s.versions.GetVersion(ctx, scope, id, versionID)
	if err != nil {
		return nil, err
	}
	stream, err := s.open(ctx, version.FilePath, "version", version.ID)
	if err != nil {
		return nil, err
	}
	stream.ContentType = version.MimeType
	stream.Filename = version.OriginalName
	if stream.Size <= 0 {
		stream.Size = version.FileSize
	}
	s.recordDownload(ctx, doc, actor.UserID, models.ActivityDocumentVersionDownload, DeliveryModeStream, map[string]interface{}{
		"version_id":     version.ID,
		"version_number": version.VersionNumber,
	})
	return stream, nil
}

// ResolveSignedDownload redeems a signed link. The link itself is the credential;
// the tenant it names is the only scope the lookup runs in.
func (s *DeliveryService) ResolveSignedDownload(ctx context.Context, documentID string, query url.Values) (*StreamDelivery, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	params, err := signedurl.ParseQuery(documentID, query)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid signed url")
	}
	now := s.now()
	if err := s.signer.Verify(params, now); err != nil {
		if errors.Is(err, signedurl.ErrExpired) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "signed url expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid signed url")
	}
	scope, err := tenant.NewScope(params.TenantID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid signed url")
	}
	doc, err := s.docs.Get(ctx, scope, documentID)
	if err != nil {
		return nil, documentLookupError(err)
	}
	if s.ledger != nil {
		fresh, err := s.ledger.Claim(ctx, params.Signature, params.ExpiresAt.Sub(now)+time.Second)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to redeem signed url")
		}
		if !fresh {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "signed url already used")
		}
	}
	stream, err := s.open(ctx, doc.FilePath, "document", doc.ID)
	if err != nil {
		return nil, err
	}
	stream.ContentType = doc.MimeType
	stream.Filename = doc.OriginalName
	if stream.Size <= 0 {
		stream.Size = doc.FileSize
	}
	s.recordDownload(ctx, doc, "", models.ActivityDocumentSignedDownloaded, DeliveryModeStream, nil)
	return stream, nil
}

func (s *DeliveryService) issueLink(ctx context.Context, scope tenant.Scope, doc *models.Document) (*SignedURLDelivery, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	if _, err := s.blobs.Stat(ctx, doc.FilePath); err != nil {
		return nil, s.storageError(ctx, err, "document", doc.ID)
	}
	params, err := s.signer.Issue(scope.ID(), doc.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign download url")
	}
	link := s.cfg.PublicBaseURL + s.cfg.APIPrefix + signedurl.Route(doc.ID) + "?" + params.Query().Encode()
	return &SignedURLDelivery{URL: link, ExpiresAt: params.ExpiresAt.UTC()}, nil
}

func (s *DeliveryService) open(ctx context.Context, key, kind, id string) (*StreamDelivery, error) {
	body, info, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, s.storageError(ctx, err, kind, id)
	}
	return &StreamDelivery{Body: body, Size: info.Size}, nil
}

func (s *DeliveryService) storageError(ctx context.Context, err error, kind, id string) error {
	switch {
	case storage.IsNotFound(err):
		logger.WithRequest(ctx, s.logger).Error("storage drift: blob missing for live record",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordStorageDrift(kind)
		}
		return appErrors.Wrap(err, appErrors.ErrFileNotFound.Code, appErrors.ErrFileNotFound.Status, appErrors.ErrFileNotFound.Message)
	case storage.IsPermission(err):
		return appErrors.Wrap(err, appErrors.ErrStoragePermission.Code, appErrors.ErrStoragePermission.Status, "storage denied access to the file")
	default:
		return appErrors.Internal(err, "failed to read file")
	}
}

func (s *DeliveryService) recordDownload(ctx context.Context, doc *models.Document, actorID, action, mode string, metadata map[string]interface{}) {
	if s.metrics != nil {
		s.metrics.RecordDownload(mode)
	}
	if s.activity == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["mode"] = mode
	s.activity.Record(ctx, ActivityEvent{
		TenantID:    doc.TenantID,
		ProjectID:   doc.ProjectID,
		ActorID:     actorID,
		Action:      action,
		EntityType:  models.ActivityEntityDocument,
		EntityID:    doc.ID,
		Description: "downloaded " + doc.Name,
		Metadata:    metadata,
	})
}
