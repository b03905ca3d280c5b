package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/docvault-api/internal/middleware"
	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/internal/service"
	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
)

// multipartOverhead leaves room for form fields and part headers around the file.
const multipartOverhead = 1 << 20

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// formUpload reads the "file" part. The returned closer must be called once the
// service is done with the content.
func formUpload(c *gin.Context, maxSize int64) (*service.Upload, func(), error) {
	if maxSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "upload exceeds size limit")
		}
		return nil, nil, appErrors.Validation("file is required", map[string]string{"file": "required"})
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to open file")
	}
	closer := func() { _ = src.Close() }

	reader, ok := src.(io.ReadSeeker)
	if !ok {
		buf, readErr := io.ReadAll(src)
		closer()
		if readErr != nil {
			return nil, nil, appErrors.Internal(readErr, "failed to buffer file")
		}
		reader = bytes.NewReader(buf)
		closer = func() {}
	}
	return &service.Upload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  reader,
	}, closer, nil
}

// writeStream sends a StreamDelivery as an attachment and closes its body.
func writeStream(c *gin.Context, stream *service.StreamDelivery) {
	defer stream.Body.Close() //nolint:errcheck
	contentType := stream.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers := map[string]string{
		"Cache-Control":       "no-store",
		"Content-Disposition": contentDisposition(stream.Filename),
	}
	c.DataFromReader(http.StatusOK, stream.Size, contentType, stream.Body, headers)
}

// contentDisposition renders attachment; filename="<name>" with quotes and
// backslashes escaped. Non-ASCII names also get an RFC 5987 filename* value.
func contentDisposition(name string) string {
	var quoted strings.Builder
	ascii := true
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case r == '"' || r == '\\':
			quoted.WriteByte('\\')
		case r >= utf8.RuneSelf:
			ascii = false
		}
		quoted.WriteRune(r)
	}
	if quoted.Len() == 0 {
		return "attachment"
	}
	value := fmt.Sprintf("attachment; filename=\"%s\"", quoted.String())
	if !ascii {
		value += "; filename*=UTF-8''" + encodeExtValue(name)
	}
	return value
}

func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isAttrChar(ch) {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

func isAttrChar(ch byte) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", ch) >= 0
}
