// Package storage persists run artifacts such as screenshots.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// BlobStorage defines the interface for storing artifacts and locating them.
type BlobStorage interface {
	Upload(ctx context.Context, path string, reader io.Reader) error
	Exists(ctx context.Context, path string) (bool, error)

	// GetURL returns where the artifact can be read from: an absolute
	// file path for local storage, a presigned URL for S3.
	GetURL(ctx context.Context, path string) (string, error)
}

// Config selects and configures a BlobStorage backend.
type Config struct {
	Type          string
	BaseDir       string
	Bucket        string
	Region        string
	Prefix        string
	Endpoint      string
	PresignExpiry time.Duration
}

// New creates the BlobStorage described by cfg.
func New(ctx context.Context, cfg Config) (BlobStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "local", "":
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("base_dir is required for local storage")
		}
		return NewLocalStorage(cfg.BaseDir)

	case "s3":
		s, err := NewS3Storage(ctx, S3Options{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Prefix:   cfg.Prefix,
			Endpoint: cfg.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		if cfg.PresignExpiry > 0 {
			s.presignExpiration = cfg.PresignExpiry
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// maxSaveAttempts bounds the suffixes Save tries before giving up.
const maxSaveAttempts = 100

// Save uploads data to path and returns its location. An existing artifact
// is never overwritten: "shot.png" becomes "shot_1.png", "shot_2.png" and so
// on until a free name is found.
func Save(ctx context.Context, s BlobStorage, p string, data []byte) (string, error) {
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)

	name := p
	for i := 1; ; i++ {
		exists, err := s.Exists(ctx, name)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		if i >= maxSaveAttempts {
			return "", fmt.Errorf("no free artifact name for %s", p)
		}
		name = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}

	if err := s.Upload(ctx, name, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return s.GetURL(ctx, name)
}
