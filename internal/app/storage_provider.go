package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/objectstore"
)

var newObjectStore = objectstore.New

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorMissingEndpoint     StorageProviderBootstrapErrorCode = "missing_endpoint"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code  StorageProviderBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveObjectStore checks the storage settings before dialing so a
// misconfigured deployment fails with a specific code.
func resolveObjectStore(ctx context.Context, log *logger.Logger, cfg StorageConfig) (objectstore.Store, error) {
	mode, err := objectstore.ParseMode(cfg.Mode)
	if err != nil {
		return nil, storageBootstrapFailed(log, StorageProviderBootstrapErrorInvalidMode, cfg.Mode, err)
	}
	if code, err := checkStorageConfig(mode, cfg); err != nil {
		return nil, storageBootstrapFailed(log, code, string(mode), err)
	}

	log.Info("selecting object storage provider", "mode", mode, "bucket", cfg.Bucket)
	store, err := newObjectStore(ctx, log, objectstore.Config{
		Mode:         mode,
		Root:         cfg.Root,
		Bucket:       strings.TrimSpace(cfg.Bucket),
		EmulatorHost: cfg.EmulatorHost,
		S3Endpoint:   cfg.S3Endpoint,
		S3AccessKey:  cfg.S3AccessKey,
		S3SecretKey:  cfg.S3SecretKey,
		S3UseSSL:     cfg.S3UseSSL,
	})
	if err != nil {
		return nil, storageBootstrapFailed(log, StorageProviderBootstrapErrorConnectFailed, string(mode), err)
	}
	return store, nil
}

func checkStorageConfig(mode objectstore.Mode, cfg StorageConfig) (StorageProviderBootstrapErrorCode, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	switch mode {
	case objectstore.ModeGCS, objectstore.ModeGCSEmulator:
		if bucket == "" {
			return StorageProviderBootstrapErrorMissingBucket, fmt.Errorf("STORAGE_MODE=%s requires GCS_BUCKET", mode)
		}
		if mode == objectstore.ModeGCSEmulator && strings.TrimSpace(cfg.EmulatorHost) == "" {
			return StorageProviderBootstrapErrorMissingEmulatorHost, fmt.Errorf("STORAGE_MODE=%s requires STORAGE_EMULATOR_HOST", mode)
		}
	case objectstore.ModeS3:
		if bucket == "" {
			return StorageProviderBootstrapErrorMissingBucket, fmt.Errorf("STORAGE_MODE=%s requires S3_BUCKET", mode)
		}
		if strings.TrimSpace(cfg.S3Endpoint) == "" {
			return StorageProviderBootstrapErrorMissingEndpoint, fmt.Errorf("STORAGE_MODE=%s requires S3_ENDPOINT", mode)
		}
	}
	return "", nil
}

func storageBootstrapFailed(log *logger.Logger, code StorageProviderBootstrapErrorCode, mode string, cause error) error {
	err := &StorageProviderBootstrapError{Code: code, Mode: mode, Cause: cause}
	log.Error("object storage bootstrap failed", "mode", mode, "error_code", code, "error", cause)
	return err
}
