// Package storage implements the dual-backed artifact store (spec §4.1):
// every Put writes to local disk and, as the authoritative copy, the
// database blob column; Get prefers disk and fails over to the blob when
// the file is missing, unreadable, or zero length.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

// BlobStore is the subset of the artifact repository the content store
// needs to read/write the database blob fallback, kept narrow for testing.
type BlobStore interface {
	WriteBlob(ctx context.Context, artifactID string, blob []byte) error
	ReadBlob(ctx context.Context, artifactID string) ([]byte, error)
}

// PutResult describes a completed write.
type PutResult struct {
	DiskPath string
	Hash     string
	Size     int64
}

// ContentStore is the C1 storage layer.
type ContentStore struct {
	uploadDir string
	db        *sqlx.DB
	logger    *zap.Logger
}

// NewContentStore constructs the store rooted at uploadDir.
func NewContentStore(uploadDir string, db *sqlx.DB, logger *zap.Logger) *ContentStore {
	return &ContentStore{uploadDir: uploadDir, db: db, logger: logger}
}

// Put persists bytes to disk (best-effort) and returns the hash/size the
// caller uses to write the authoritative blob via the artifact repository.
// A disk failure here is non-fatal as long as the caller can still write
// the blob; callers that need the strict failure-model of §4.1 (partial
// write rollback) should call Delete on the returned path if the
// subsequent blob write fails.
func (s *ContentStore) Put(ext string, data []byte) (PutResult, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	dir := filepath.Join(s.uploadDir, hash[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Warn("content store: mkdir failed, disk write skipped", zap.Error(err))
		return PutResult{Hash: hash, Size: int64(len(data))}, nil
	}

	finalPath := filepath.Join(dir, hash+ext)
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		s.logger.Warn("content store: disk write failed", zap.Error(err))
		return PutResult{Hash: hash, Size: int64(len(data))}, nil
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		s.logger.Warn("content store: disk rename failed", zap.Error(err))
		return PutResult{Hash: hash, Size: int64(len(data))}, nil
	}

	return PutResult{DiskPath: finalPath, Hash: hash, Size: int64(len(data))}, nil
}

// RollbackDisk removes a disk-written file after a blob write failed,
// preserving the §4.1 invariant that a failed Put leaves no orphan bytes.
func (s *ContentStore) RollbackDisk(diskPath string) {
	if diskPath == "" {
		return
	}
	if err := os.Remove(diskPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("content store: rollback failed", zap.Error(err))
	}
}

// Get reads bytes for an artifact, trying disk first and failing over to
// the database blob on any I/O failure.
func (s *ContentStore) Get(ctx context.Context, blobs BlobStore, artifactID, diskPath string) ([]byte, error) {
	if diskPath != "" {
		data, err := readDiskFile(diskPath)
		if err == nil && len(data) > 0 {
			return data, nil
		}
		if err != nil {
			s.logger.Warn("content store: disk read failed, falling back to blob",
				zap.String("artifact_id", artifactID), zap.Error(err))
		}
	}

	data, err := blobs.ReadBlob(ctx, artifactID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "both storage backends failed")
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrStorageUnavailable, "both storage backends failed")
	}
	return data, nil
}

// Exists reports whether the disk copy is currently readable.
func (s *ContentStore) Exists(diskPath string) bool {
	if diskPath == "" {
		return false
	}
	info, err := os.Stat(diskPath)
	return err == nil && info.Size() > 0
}

// Delete removes the disk copy for an artifact, if present. The blob row
// is removed by the repository as part of the artifact row's lifecycle.
func (s *ContentStore) Delete(diskPath string) error {
	if diskPath == "" {
		return nil
	}
	if err := os.Remove(diskPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete disk file: %w", err)
	}
	return nil
}

func readDiskFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return data, nil
}
