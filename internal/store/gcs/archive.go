// Package gcs archives original receipt files in a Cloud Storage bucket so
// the source of every receipt transaction can be re-inspected later.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Archive stores receipt files under receipts/<user>/<uuid><ext> in one
// bucket. It assumes Application Default Credentials are configured.
type Archive struct {
	client *storage.Client
	bucket string
	log    zerolog.Logger
}

// NewArchive creates an archive backed by the given bucket.
func NewArchive(ctx context.Context, bucket string, log zerolog.Logger) (*Archive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: create storage client: %w", err)
	}
	return &Archive{client: client, bucket: bucket, log: log}, nil
}

func (a *Archive) Close() error {
	return a.client.Close()
}

// Upload stores one receipt file and returns its gs:// URI. The object name
// is generated, so the same file can be uploaded twice without collisions.
func (a *Archive) Upload(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	objectName := fmt.Sprintf("receipts/%s/%s%s", userID, uuid.NewString(), extensionFor(contentType))

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs: write object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs: finalize upload %s: %w", objectName, err)
	}

	uri := "gs://" + a.bucket + "/" + objectName
	a.log.Info().Str("uri", uri).Int("size", len(data)).Msg("Receipt archived")

	return uri, nil
}

// Fetch downloads the file bytes from the given gs:// URI.
func (a *Archive) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := splitURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := a.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("gcs: reading bytes: %w", err)
	}

	return data, nil
}

// Filename extracts the object's base name from a gs:// URI.
// e.g. "gs://bucket/receipts/u1/abc.jpg" -> "abc.jpg"
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// extensionFor maps the content types the bot accepts to file extensions.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	case "audio/ogg":
		return ".ogg"
	default:
		return ""
	}
}

func splitURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("gcs: invalid URI: %s", gcsURI)
	}
	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("gcs: invalid URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}
