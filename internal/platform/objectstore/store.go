package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

// Store keeps uploaded source documents.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type Mode string

const (
	ModeLocal       Mode = "local"
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
	ModeS3          Mode = "s3"
)

var ErrNotFound = errors.New("object not found")

type Config struct {
	Mode Mode
	// Root is the directory for ModeLocal.
	Root string
	// Bucket is used by every remote mode.
	Bucket       string
	EmulatorHost string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
}

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeLocal:
		return ModeLocal, nil
	case ModeGCS:
		return ModeGCS, nil
	case ModeGCSEmulator:
		return ModeGCSEmulator, nil
	case ModeS3, "minio":
		return ModeS3, nil
	default:
		return "", fmt.Errorf("invalid STORAGE_MODE=%q (allowed: local, gcs, gcs_emulator, s3)", raw)
	}
}

// New builds the Store selected by cfg.Mode.
func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	switch cfg.Mode {
	case ModeLocal, "":
		return NewLocal(log, cfg.Root)
	case ModeGCS, ModeGCSEmulator:
		return NewGCS(ctx, log, cfg)
	case ModeS3:
		return NewS3(log, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage mode %q", cfg.Mode)
	}
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}
