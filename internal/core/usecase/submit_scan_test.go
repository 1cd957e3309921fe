package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

type submitRepoFake struct {
	created *domain.ScanJob
	err     error
}

func (f *submitRepoFake) Create(_ context.Context, job *domain.ScanJob) error {
	if f.err != nil {
		return f.err
	}
	cp := *job
	f.created = &cp
	return nil
}

func (f *submitRepoFake) GetByID(context.Context, string) (*domain.ScanJob, error) {
	return nil, errors.New("not implemented")
}
func (f *submitRepoFake) UpdateState(context.Context, *domain.ScanJob) error {
	return errors.New("not implemented")
}
func (f *submitRepoFake) SaveItems(context.Context, *domain.ScanJob) error {
	return errors.New("not implemented")
}

type submitStorageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *submitStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *submitStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type submitQueueFake struct {
	scanID string
	err    error
}

func (f *submitQueueFake) PublishScanSubmitted(_ context.Context, scanID string) error {
	if f.err != nil {
		return f.err
	}
	f.scanID = scanID
	return nil
}

func (f *submitQueueFake) SubscribeScanSubmitted(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func (f *submitQueueFake) PublishReminderDue(context.Context, domain.Notification) error {
	return errors.New("not implemented")
}

type inspectorFake struct {
	mimeType string
	err      error
}

func (f inspectorFake) Inspect([]byte) (string, error) {
	return f.mimeType, f.err
}

func TestUploadCreatesJobAndPublishes(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &submitStorageFake{}
	queue := &submitQueueFake{}
	uc := NewSubmitScanUseCase(repo, storage, queue, inspectorFake{mimeType: "image/jpeg"}, 0)

	job, err := uc.Upload(context.Background(), "receipt 1.jpg", bytes.NewBufferString("jpeg"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if job.ID == "" || job.State != domain.ScanCreated {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.MimeType != "image/jpeg" {
		t.Fatalf("expected sniffed mime type, got %q", job.MimeType)
	}
	if repo.created == nil || queue.scanID != job.ID {
		t.Fatalf("expected job created and published, repo=%+v queue=%q", repo.created, queue.scanID)
	}
	if !strings.HasSuffix(storage.savedKey, "_receipt_1.jpg") || storage.savedBody != "jpeg" {
		t.Fatalf("unexpected stored object key=%q body=%q", storage.savedKey, storage.savedBody)
	}
}

func TestUploadRejectsUnsupportedContent(t *testing.T) {
	uc := NewSubmitScanUseCase(&submitRepoFake{}, &submitStorageFake{}, &submitQueueFake{}, inspectorFake{err: errors.New("text/plain is not a receipt image")}, 0)

	_, err := uc.Upload(context.Background(), "notes.txt", bytes.NewBufferString("hello"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	storage := &submitStorageFake{}
	uc := NewSubmitScanUseCase(&submitRepoFake{}, storage, &submitQueueFake{}, inspectorFake{mimeType: "image/png"}, 4)

	_, err := uc.Upload(context.Background(), "big.png", bytes.NewBufferString("12345"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if storage.savedKey != "" {
		t.Fatalf("oversized upload must not be stored")
	}
}

func TestUploadRejectsEmptyBody(t *testing.T) {
	uc := NewSubmitScanUseCase(&submitRepoFake{}, &submitStorageFake{}, &submitQueueFake{}, inspectorFake{mimeType: "image/png"}, 0)
	if _, err := uc.Upload(context.Background(), "empty.png", bytes.NewBuffer(nil)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestUploadQueueError(t *testing.T) {
	uc := NewSubmitScanUseCase(&submitRepoFake{}, &submitStorageFake{}, &submitQueueFake{err: errors.New("queue down")}, inspectorFake{mimeType: "image/png"}, 0)

	_, err := uc.Upload(context.Background(), "r.png", bytes.NewBufferString("png"))
	if err == nil || !strings.Contains(err.Error(), "publish scan event") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		"my receipt?.jpg":  "my_receipt_.jpg",
		"":                 "receipt.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
