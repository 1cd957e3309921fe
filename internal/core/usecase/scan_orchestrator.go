package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
)

type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
	// PerAttemptTimeout bounds each submit/poll call. Zero leaves the
	// transport timeout in charge.
	PerAttemptTimeout time.Duration
	// BackoffMultiplier grows the interval after every poll. 1 keeps it fixed.
	BackoffMultiplier float64
	MaxInterval       time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		MaxAttempts:       50,
		Interval:          1 * time.Second,
		BackoffMultiplier: 1.0,
	}
}

func (c PollConfig) normalize() PollConfig {
	out := c
	def := DefaultPollConfig()

	if out.MaxAttempts <= 0 {
		out.MaxAttempts = def.MaxAttempts
	}
	if out.Interval <= 0 {
		out.Interval = def.Interval
	}
	if out.PerAttemptTimeout < 0 {
		out.PerAttemptTimeout = 0
	}
	if out.BackoffMultiplier < 1.0 {
		out.BackoffMultiplier = def.BackoffMultiplier
	}
	if out.MaxInterval <= 0 && out.BackoffMultiplier > 1.0 {
		out.MaxInterval = out.Interval * 10
	}
	if out.MaxInterval < out.Interval {
		out.MaxInterval = out.Interval
	}
	return out
}

// TransitionHook observes every state change of a job during Run.
type TransitionHook func(ctx context.Context, job *domain.ScanJob)

// ScanOrchestrator drives the upload-then-poll protocol for one job at a time.
// It keeps no per-job state of its own; everything lives on the ScanJob.
type ScanOrchestrator struct {
	client       ports.AnalysisClient
	cfg          PollConfig
	onTransition TransitionHook
}

func NewScanOrchestrator(client ports.AnalysisClient, cfg PollConfig) *ScanOrchestrator {
	return &ScanOrchestrator{
		client: client,
		cfg:    cfg.normalize(),
	}
}

// WithTransitionHook returns a copy that reports transitions to hook.
func (o *ScanOrchestrator) WithTransitionHook(hook TransitionHook) *ScanOrchestrator {
	cp := *o
	cp.onTransition = hook
	return &cp
}

func (o *ScanOrchestrator) Config() PollConfig {
	return o.cfg
}

// Submit uploads the job image and records the operation handle. Upload is not
// safe to repeat, so failures are returned without retrying.
func (o *ScanOrchestrator) Submit(ctx context.Context, job *domain.ScanJob) (string, error) {
	if job == nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "submit scan", errors.New("job is nil"))
	}
	if job.State != domain.ScanCreated {
		return "", domain.WrapError(domain.ErrInvalidInput, "submit scan", fmt.Errorf("job %s is %s, want %s", job.ID, job.State, domain.ScanCreated))
	}
	if len(job.Image) == 0 {
		return "", o.fail(ctx, job, domain.ScanFailed, domain.WrapError(domain.ErrInvalidInput, "submit scan", errors.New("empty image")))
	}

	callCtx, cancel := o.attemptContext(ctx)
	handle, err := o.client.Submit(callCtx, job.Image, job.MimeType)
	cancel()
	if err != nil {
		return "", o.fail(ctx, job, domain.ScanFailed, ensureScanKind(err, "submit scan"))
	}
	if handle == "" {
		return "", o.fail(ctx, job, domain.ScanFailed, domain.WrapError(domain.ErrProtocol, "submit scan", errors.New("empty operation handle")))
	}

	job.OperationHandle = handle
	o.transition(ctx, job, domain.ScanSubmitted)
	return handle, nil
}

// Poll performs exactly one status request.
func (o *ScanOrchestrator) Poll(ctx context.Context, operationHandle string) (*domain.AnalysisResult, error) {
	callCtx, cancel := o.attemptContext(ctx)
	defer cancel()

	result, err := o.client.Poll(callCtx, operationHandle)
	if err != nil {
		return nil, ensureScanKind(err, "poll analysis")
	}
	if result == nil {
		return nil, domain.WrapError(domain.ErrProtocol, "poll analysis", errors.New("empty analysis result"))
	}
	switch result.Status {
	case domain.AnalysisRunning, domain.AnalysisSucceeded, domain.AnalysisFailed:
		return result, nil
	default:
		return nil, domain.WrapError(domain.ErrProtocol, "poll analysis", fmt.Errorf("unknown status %q", result.Status))
	}
}

// Run submits the job and polls until the backend reports success, reports
// failure, or the attempt budget runs out. Every error ends the run; a
// malformed poll response is never treated as "still running".
func (o *ScanOrchestrator) Run(ctx context.Context, job *domain.ScanJob) (*domain.AnalysisResult, error) {
	if _, err := o.Submit(ctx, job); err != nil {
		return nil, err
	}

	job.Attempt = 0
	o.transition(ctx, job, domain.ScanPolling)

	wait := o.cfg.Interval
	var result *domain.AnalysisResult
	for (result == nil || result.Status != domain.AnalysisSucceeded) && job.Attempt < o.cfg.MaxAttempts {
		if err := sleepContext(ctx, wait); err != nil {
			return nil, o.fail(ctx, job, domain.ScanFailed, fmt.Errorf("poll analysis cancelled: %w", err))
		}

		job.Attempt++
		res, err := o.Poll(ctx, job.OperationHandle)
		if err != nil {
			return nil, o.fail(ctx, job, domain.ScanFailed, err)
		}
		slog.Debug("scan_poll_attempt",
			"scan_id", job.ID,
			"attempt", job.Attempt,
			"max_attempts", o.cfg.MaxAttempts,
			"status", string(res.Status),
		)
		if res.Status == domain.AnalysisFailed {
			return nil, o.fail(ctx, job, domain.ScanFailed, domain.WrapError(domain.ErrAnalysisFailed, "poll analysis", errors.New("backend reported failure")))
		}
		result = res
		wait = o.nextInterval(wait)
	}

	if result == nil || result.Status != domain.AnalysisSucceeded {
		err := domain.WrapError(domain.ErrTimeout, "poll analysis", fmt.Errorf("no result after %d attempts", job.Attempt))
		return nil, o.fail(ctx, job, domain.ScanTimedOut, err)
	}

	job.PurchaseDate = result.PurchaseDate
	job.Error = ""
	o.transition(ctx, job, domain.ScanSucceeded)
	return result, nil
}

func (o *ScanOrchestrator) nextInterval(current time.Duration) time.Duration {
	if o.cfg.BackoffMultiplier <= 1.0 {
		return current
	}
	next := time.Duration(float64(current) * o.cfg.BackoffMultiplier)
	if next > o.cfg.MaxInterval {
		next = o.cfg.MaxInterval
	}
	return next
}

func (o *ScanOrchestrator) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.PerAttemptTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.PerAttemptTimeout)
	}
	return context.WithCancel(ctx)
}

func (o *ScanOrchestrator) fail(ctx context.Context, job *domain.ScanJob, state domain.ScanState, err error) error {
	job.Error = err.Error()
	o.transition(ctx, job, state)
	slog.Warn("scan_run_failed",
		"scan_id", job.ID,
		"state", string(state),
		"attempt", job.Attempt,
		"error", err,
	)
	return err
}

func (o *ScanOrchestrator) transition(ctx context.Context, job *domain.ScanJob, state domain.ScanState) {
	job.State = state
	job.UpdatedAt = time.Now().UTC()
	if o.onTransition != nil {
		o.onTransition(ctx, job)
	}
}

// ensureScanKind tags errors that came back from the client without a
// pipeline kind as transport failures.
func ensureScanKind(err error, operation string) error {
	if domain.IsKind(err, domain.ErrTransport) ||
		domain.IsKind(err, domain.ErrProtocol) ||
		domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	return domain.WrapError(domain.ErrTransport, operation, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
