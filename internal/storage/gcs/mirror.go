// Package gcs mirrors snapshot files into a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/lotto-store-crawler/internal/hash/sha256"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Mirror uploads snapshot bytes to <bucket>/<prefix>/<name>. Payloads identical to the last
// successful upload of the same name are skipped.
type Mirror struct {
	client *storage.Client
	bucket string
	prefix string
	seen   *sha256.Tracker
}

// New creates a GCS-backed snapshot mirror.
func New(client *storage.Client, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		seen:   sha256.NewTracker(),
	}, nil
}

// ObjectName returns the object path a snapshot name is stored under.
func (m *Mirror) ObjectName(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Save uploads data as a JSON object, replacing any previous version. The payload digest is
// stored in the object's "sha256" metadata.
func (m *Mirror) Save(ctx context.Context, name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("object name is required")
	}
	digest := sha256.Digest(data)
	if !m.seen.Changed(name, digest) {
		return nil
	}
	writer := m.client.Bucket(m.bucket).Object(m.ObjectName(name)).NewWriter(ctx)
	writer.ContentType = "application/json; charset=utf-8"
	writer.Metadata = map[string]string{"sha256": digest}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object %s: %w (close writer: %v)", m.URI(name), err, closeErr)
		}
		return fmt.Errorf("copy object %s: %w", m.URI(name), err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", m.URI(name), err)
	}
	m.seen.Record(name, digest)
	return nil
}

// URI returns the gs:// location of a snapshot name.
func (m *Mirror) URI(name string) string {
	return fmt.Sprintf("gs://%s/%s", m.bucket, m.ObjectName(name))
}
