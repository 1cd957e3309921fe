package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
)

const defaultMaxUploadBytes = 10 << 20

type SubmitScanUseCase struct {
	repo           ports.ScanRepository
	storage        ports.ObjectStorage
	queue          ports.MessageQueue
	inspector      ports.ReceiptInspector
	maxUploadBytes int64
}

func NewSubmitScanUseCase(
	repo ports.ScanRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	inspector ports.ReceiptInspector,
	maxUploadBytes int64,
) *SubmitScanUseCase {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &SubmitScanUseCase{
		repo:           repo,
		storage:        storage,
		queue:          queue,
		inspector:      inspector,
		maxUploadBytes: maxUploadBytes,
	}
}

func (uc *SubmitScanUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.ScanJob, error) {
	data, err := io.ReadAll(io.LimitReader(body, uc.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload scan", errors.New("empty upload"))
	}
	if int64(len(data)) > uc.maxUploadBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload scan", fmt.Errorf("upload exceeds %d bytes", uc.maxUploadBytes))
	}

	mimeType, err := uc.inspector.Inspect(data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "inspect receipt", err)
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	job := &domain.ScanJob{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StorageKey:  storageKey,
		SubmittedAt: now,
		State:       domain.ScanCreated,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create scan job: %w", err)
	}

	if err := uc.queue.PublishScanSubmitted(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("publish scan event: %w", err)
	}
	return job, nil
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
	if base == "" || base == "." || base == "_" {
		return "receipt.bin"
	}
	return base
}
