package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
	"github.com/noah-isme/docvault-api/pkg/storage"
)

// Upload carries an incoming file part.
type Upload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.ReadSeeker
}

type preparedUpload struct {
	Filename    string
	Size        int64
	MimeType    string
	ContentHash string
	FileType    string
}

// prepareUpload hashes and sniffs the content, leaving it rewound for storage.
func prepareUpload(upload *Upload, maxSize int64) (*preparedUpload, error) {
	if upload == nil || upload.Content == nil {
		return nil, appErrors.Validation("file is required", map[string]string{"file": "required"})
	}
	if maxSize > 0 && upload.Size > maxSize {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes limit", maxSize))
	}
	hasher := sha256.New()
	written, err := io.Copy(hasher, upload.Content)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to read upload")
	}
	if written == 0 {
		return nil, appErrors.Validation("file is empty", map[string]string{"file": "must not be empty"})
	}
	if maxSize > 0 && written > maxSize {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes limit", maxSize))
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return nil, appErrors.Internal(err, "failed to reset upload stream")
	}

	mimeType := strings.TrimSpace(upload.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		detected, err := mimetype.DetectReader(upload.Content)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to inspect file")
		}
		mimeType = detected.String()
		if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
			return nil, appErrors.Internal(err, "failed to reset upload stream")
		}
	}

	name := filepath.Base(strings.ReplaceAll(upload.Filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return &preparedUpload{
		Filename:    name,
		Size:        written,
		MimeType:    mimeType,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		FileType:    strings.TrimPrefix(storage.Extension(name), "."),
	}, nil
}

// defaultName is the filename without its extension.
func defaultName(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if strings.TrimSpace(base) == "" {
		return filename
	}
	return base
}
