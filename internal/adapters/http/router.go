package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/config"
	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
	"github.com/kirillkom/receipt-reminders/internal/observability/metrics"
)

// Multipart framing on top of the receipt bytes.
const multipartOverheadBytes = 1 << 20

type Router struct {
	cfg       config.Config
	scans     ports.ScanSubmitter
	reader    ports.ScanReader
	matcher   ports.ItemMatcher
	reminders ports.ReminderScheduler
	location  *time.Location
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	scans ports.ScanSubmitter,
	reader ports.ScanReader,
	matcher ports.ItemMatcher,
	reminders ports.ReminderScheduler,
) *Router {
	loc, err := cfg.Location()
	if err != nil {
		slog.Warn("reminder_timezone_invalid", "timezone", cfg.ReminderTimezone, "error", err)
		loc = time.Local
	}
	return &Router{
		cfg:       cfg,
		scans:     scans,
		reader:    reader,
		matcher:   matcher,
		reminders: reminders,
		location:  loc,
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/scans", rt.uploadScan)
	mux.HandleFunc("/v1/scans/", rt.getScanByID)
	mux.HandleFunc("/v1/match", rt.matchItem)
	mux.HandleFunc("/v1/reminders", rt.reminderCollection)
	mux.HandleFunc("/v1/reminders/bulk", rt.bulkSchedule)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.HTTPMaxInFlight, time.Duration(rt.cfg.HTTPBackpressureWaitMillis)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.HTTPRateLimitRPS, rt.cfg.HTTPRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.cfg.ScanMaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(rt.cfg.ScanMaxUploadBytes)+multipartOverheadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "receipt is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	job, err := rt.scans.Upload(r.Context(), fileHeader.Filename, file)
	if rt.metrics != nil {
		mimeType := ""
		if job != nil {
			mimeType = job.MimeType
		}
		rt.metrics.RecordUpload(mimeType, int(fileHeader.Size), err)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) getScanByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/scans/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scan id is required"})
		return
	}

	job, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type matchResponse struct {
	ScannedName string                `json:"scanned_name"`
	Matched     *domain.ReferenceItem `json:"matched,omitempty"`
	DueDays     float64               `json:"due_days"`
	Suggestions []string              `json:"suggestions,omitempty"`
}

func (rt *Router) matchItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	result := rt.matcher.Match(req.Name)
	resp := matchResponse{
		ScannedName: result.ScannedName,
		Matched:     result.Matched,
		DueDays:     result.DueDays(),
	}
	if result.Matched == nil {
		resp.Suggestions = rt.matcher.Suggest(req.Name, rt.cfg.MatchSuggestionLimit)
	}
	writeJSON(w, http.StatusOK, resp)
}

type reminderRequest struct {
	ItemName string `json:"item_name"`
	DueDate  string `json:"due_date"`
}

func (rt *Router) reminderCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := rt.reminders.Pending(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reminders": records})
	case http.MethodPost, http.MethodDelete:
		var req reminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		due, err := rt.parseDueDate(req.DueDate)
		if err != nil {
			writeError(w, err)
			return
		}
		name := strings.TrimSpace(req.ItemName)

		if r.Method == http.MethodPost {
			err = rt.reminders.Schedule(r.Context(), name, due)
		} else {
			err = rt.reminders.Remove(r.Context(), name, due)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusCreated, map[string]string{"day_key": domain.DayKey(due, rt.location)})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

type bulkFailure struct {
	ItemName string `json:"item_name"`
	Error    string `json:"error"`
}

func (rt *Router) bulkSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Items []reminderRequest `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	// Failures are reported in input order; parse errors and scheduling
	// errors are slotted back by the item's position.
	byInput := make([]*bulkFailure, len(req.Items))
	requests := make([]domain.ScheduleRequest, 0, len(req.Items))
	inputIndex := make([]int, 0, len(req.Items))
	for i, item := range req.Items {
		sr := domain.ScheduleRequest{ItemName: strings.TrimSpace(item.ItemName)}
		if item.DueDate != "" {
			due, err := rt.parseDueDate(item.DueDate)
			if err != nil {
				byInput[i] = &bulkFailure{ItemName: sr.ItemName, Error: err.Error()}
				continue
			}
			sr.DueDate = &due
		}
		requests = append(requests, sr)
		inputIndex = append(inputIndex, i)
	}

	result := rt.reminders.BulkSchedule(r.Context(), requests)
	for _, f := range result.Failures {
		if f.Index < 0 || f.Index >= len(inputIndex) {
			continue
		}
		msg := "scheduling failed"
		if f.Err != nil {
			msg = f.Err.Error()
		}
		byInput[inputIndex[f.Index]] = &bulkFailure{ItemName: f.ItemName, Error: msg}
	}
	failures := make([]bulkFailure, 0, len(result.Failures))
	for _, f := range byInput {
		if f != nil {
			failures = append(failures, *f)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduled": result.Scheduled,
		"failures":  failures,
	})
}

// parseDueDate accepts RFC 3339 timestamps or bare dates. A bare date is
// pinned to noon in the reminder location so it cannot shift a day.
func (rt *Router) parseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domain.WrapError(domain.ErrInvalidInput, "parse due date", errors.New("due_date is required"))
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(domain.DayKeyLayout, raw, rt.location)
	if err != nil {
		return time.Time{}, domain.WrapError(domain.ErrInvalidInput, "parse due date", err)
	}
	return d.Add(12 * time.Hour), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
