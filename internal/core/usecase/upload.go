package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildcost/docpipe/internal/core/domain"
	"github.com/buildcost/docpipe/internal/core/ports"
)

// UploadPolicy bounds what the upload endpoint accepts.
type UploadPolicy struct {
	MaxSizeBytes     int64
	AllowedMimeTypes []string
}

func (p UploadPolicy) mimeAllowed(mimeType string) bool {
	if len(p.AllowedMimeTypes) == 0 {
		return true
	}
	base := mimeType
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimSpace(strings.ToLower(base))
	for _, allowed := range p.AllowedMimeTypes {
		if base == allowed {
			return true
		}
	}
	return false
}

type UploadUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	events  ports.EventLog
	policy  UploadPolicy
	logger  *slog.Logger
}

func NewUploadUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	events ports.EventLog,
	policy UploadPolicy,
	logger *slog.Logger,
) *UploadUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		events:  events,
		policy:  policy,
		logger:  logger,
	}
}

// Upload validates the input, hashes the full content, short-circuits on a
// duplicate hash, and otherwise stages the bytes, creates the metadata row
// and promotes the blob to its content-addressed location. Any failure after
// the temporary write triggers best-effort cleanup so no orphaned state
// persists.
func (uc *UploadUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*ports.UploadResult, error) {
	if err := uc.validate(req); err != nil {
		return nil, err
	}

	hasher := sha256.New()
	limited := io.LimitReader(req.Body, uc.policy.MaxSizeBytes+1)
	tempPath, size, err := uc.storage.SaveTemp(ctx, io.TeeReader(limited, hasher))
	if err != nil {
		return nil, fmt.Errorf("stage upload bytes: %w", err)
	}
	if size == 0 {
		uc.cleanupTemp(ctx, tempPath)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty file"))
	}
	if size > uc.policy.MaxSizeBytes {
		uc.cleanupTemp(ctx, tempPath)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("file exceeds %d bytes", uc.policy.MaxSizeBytes))
	}

	hash := hex.EncodeToString(hasher.Sum(nil))

	existing, err := uc.repo.FindByHash(ctx, hash)
	if err == nil {
		// Byte-identical content already ingested: no writes, return the
		// existing document.
		uc.cleanupTemp(ctx, tempPath)
		uc.logger.Info("duplicate_upload",
			"document_id", existing.ID, "filename", req.Filename, "hash", hash)
		return &ports.UploadResult{Document: existing, Duplicate: true}, nil
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		uc.cleanupTemp(ctx, tempPath)
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          uuid.NewString(),
		Filename:    req.Filename,
		MimeType:    req.MimeType,
		SizeBytes:   size,
		ContentHash: hash,
		StoragePath: tempPath,
		ProjectID:   req.ProjectID,
		Tags:        req.Tags,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.cleanupTemp(ctx, tempPath)
		// A concurrent upload of the same bytes may win the insert between
		// the dedup lookup and Create; the loser returns the winner.
		if domain.IsKind(err, domain.ErrConflict) {
			if existing, findErr := uc.repo.FindByHash(ctx, hash); findErr == nil {
				uc.logger.Info("duplicate_upload_race",
					"document_id", existing.ID, "filename", req.Filename, "hash", hash)
				return &ports.UploadResult{Document: existing, Duplicate: true}, nil
			}
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	finalPath, err := uc.storage.Promote(ctx, tempPath, hash)
	if err != nil {
		uc.rollback(ctx, doc.ID, tempPath)
		return nil, fmt.Errorf("promote upload bytes: %w", err)
	}
	if err := uc.repo.SetStoragePath(ctx, doc.ID, finalPath); err != nil {
		uc.rollback(ctx, doc.ID, finalPath)
		return nil, fmt.Errorf("record storage path: %w", err)
	}
	doc.StoragePath = finalPath

	uc.appendEvent(ctx, doc.ID, domain.EventOK, "stored "+sanitizeFilename(req.Filename))

	if err := uc.queue.PublishPipelineRequested(ctx, doc.ID); err != nil {
		uc.appendEvent(ctx, doc.ID, domain.EventFail, "enqueue: "+err.Error())
		return nil, fmt.Errorf("publish pipeline request: %w", err)
	}

	return &ports.UploadResult{Document: doc}, nil
}

// Delete soft-deletes a document and removes its stored bytes. Committed
// documents stay put: canonical rows reference them as provenance. The
// content hash becomes reusable because dedup ignores deleted rows.
func (uc *UploadUseCase) Delete(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.CommittedAt != nil {
		return domain.WrapError(domain.ErrConflict, "delete",
			fmt.Errorf("document %s is committed", documentID))
	}
	if err := uc.repo.SoftDelete(ctx, documentID); err != nil {
		return err
	}
	if doc.StoragePath != "" {
		if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
			uc.logger.Warn("document_blob_delete_failed",
				"document_id", documentID, "path", doc.StoragePath, "error", err)
		}
	}
	return nil
}

func (uc *UploadUseCase) validate(req ports.UploadRequest) error {
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("filename is required"))
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("filename %q contains path characters", name))
	}
	if !uc.policy.mimeAllowed(req.MimeType) {
		return domain.WrapError(domain.ErrInvalidInput, "upload",
			fmt.Errorf("mime type %q is not allowed", req.MimeType))
	}
	return nil
}

// cleanupTemp and rollback are best-effort: failures are logged, never
// surfaced past the caller, so they cannot mask the original error.
func (uc *UploadUseCase) cleanupTemp(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := uc.storage.Delete(ctx, path); err != nil {
		uc.logger.Warn("upload_temp_cleanup_failed", "path", path, "error", err)
	}
}

func (uc *UploadUseCase) rollback(ctx context.Context, documentID, blobPath string) {
	uc.cleanupTemp(ctx, blobPath)
	if err := uc.repo.HardDelete(ctx, documentID); err != nil {
		uc.logger.Warn("upload_metadata_rollback_failed", "document_id", documentID, "error", err)
	}
}

func (uc *UploadUseCase) appendEvent(ctx context.Context, documentID string, status domain.EventStatus, message string) {
	ev := domain.IngestEvent{
		DocumentID: documentID,
		Stage:      domain.StageUpload,
		Status:     status,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.events.Append(ctx, ev); err != nil {
		uc.logger.Warn("ingest_event_append_failed", "document_id", documentID, "error", err)
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
