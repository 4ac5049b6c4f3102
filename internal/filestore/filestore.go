package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Storage defines the blob operations used for submission attachments
type Storage interface {
	// Save stores the content at key
	Save(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Delete removes the content at key
	Delete(ctx context.Context, key string) error

	// URL returns the public retrieval URL for key
	URL(key string) string
}

// Config holds storage configuration
type Config struct {
	Type      string // local or s3
	BasePath  string // For local storage
	BaseURL   string // Public URL base
	Bucket    string // For S3/R2
	Region    string // For S3
	Endpoint  string // For R2 or custom S3
	AccessKey string
	SecretKey string
}

// New creates a storage backend based on configuration
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalStorage(cfg)
	case "s3":
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// File is the stored form of one uploaded blob.
type File struct {
	Key  string `json:"-"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Uploader names, sniffs and stores uploaded files.
type Uploader struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

func NewUploader(storage Storage, logger *slog.Logger) *Uploader {
	return &Uploader{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Upload stores one file. The content type is detected from the bytes,
// not taken from the client.
func (u *Uploader) Upload(ctx context.Context, filename string, reader io.Reader) (*File, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	mime := mimetype.Detect(data)
	key := u.key(filename, mime.Extension())

	if err := u.storage.Save(ctx, key, bytes.NewReader(data), mime.String()); err != nil {
		return nil, err
	}

	u.logger.Info("File uploaded",
		slog.String("key", key),
		slog.String("content_type", mime.String()),
		slog.Int("size", len(data)),
	)

	return &File{
		Key:  key,
		Name: path.Base(filename),
		URL:  u.storage.URL(key),
		Type: mime.String(),
	}, nil
}

// Remove deletes previously stored files, logging failures.
func (u *Uploader) Remove(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := u.storage.Delete(ctx, key); err != nil {
			u.logger.Warn("Failed to remove upload",
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}
}

func (u *Uploader) key(filename, detectedExt string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || len(ext) > 10 {
		ext = detectedExt
	}
	return fmt.Sprintf("submissions/%s/%s%s", u.now().UTC().Format("2006/01/02"), uuid.NewString(), ext)
}
