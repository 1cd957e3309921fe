// Package formrecognizer implements the receipt analysis backend protocol:
// POST the image, read the Operation-Location header, then GET that URL until
// the analysis settles.
package formrecognizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/resilience"
)

const (
	analyzePath             = "/formrecognizer/v2.1/prebuilt/receipt/analyze"
	apiKeyHeader            = "Ocp-Apim-Subscription-Key"
	operationLocationHeader = "Operation-Location"
)

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(endpoint, apiKey string) *Client {
	return NewWithOptions(endpoint, apiKey, Options{})
}

func NewWithOptions(endpoint, apiKey string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

// Submit uploads the receipt and returns the operation location.
func (c *Client) Submit(ctx context.Context, image []byte, mimeType string) (string, error) {
	handle, err := resilience.ExecuteValue(ctx, c.executor, "analysis.submit", func(callCtx context.Context) (string, error) {
		return c.submit(callCtx, image, mimeType)
	}, classifyAnalysisError)
	if err != nil {
		return "", wrapOpenCircuit("analysis submit", err)
	}
	return handle, nil
}

// Poll fetches the current analysis state once.
func (c *Client) Poll(ctx context.Context, operationHandle string) (*domain.AnalysisResult, error) {
	if strings.TrimSpace(operationHandle) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analysis poll", errors.New("operation handle is empty"))
	}

	result, err := resilience.ExecuteValue(ctx, c.executor, "analysis.poll", func(callCtx context.Context) (*domain.AnalysisResult, error) {
		var payload pollResponse
		if err := c.getJSON(callCtx, operationHandle, &payload); err != nil {
			return nil, err
		}
		return payload.toResult()
	}, classifyAnalysisError)
	if err != nil {
		return nil, wrapOpenCircuit("analysis poll", err)
	}
	return result, nil
}

type pollResponse struct {
	Status        string         `json:"status"`
	AnalyzeResult *analyzeResult `json:"analyzeResult"`
}

type analyzeResult struct {
	DocumentResults []documentResult `json:"documentResults"`
}

type documentResult struct {
	Fields map[string]field `json:"fields"`
}

type field struct {
	Type        string           `json:"type"`
	Text        string           `json:"text"`
	ValueString string           `json:"valueString"`
	ValueDate   string           `json:"valueDate"`
	ValueArray  []field          `json:"valueArray"`
	ValueObject map[string]field `json:"valueObject"`
}

func (f field) stringValue() string {
	if v := strings.TrimSpace(f.ValueString); v != "" {
		return v
	}
	return strings.TrimSpace(f.Text)
}

func (p pollResponse) toResult() (*domain.AnalysisResult, error) {
	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "notstarted", "running":
		return &domain.AnalysisResult{Status: domain.AnalysisRunning}, nil
	case "failed":
		return &domain.AnalysisResult{Status: domain.AnalysisFailed}, nil
	case "succeeded":
		return p.succeededResult(), nil
	default:
		return nil, domain.WrapError(domain.ErrProtocol, "decode analysis status", fmt.Errorf("unknown status %q", p.Status))
	}
}

// succeededResult extracts the purchase date and item names from the first
// document. Fields that are missing or unreadable are left empty.
func (p pollResponse) succeededResult() *domain.AnalysisResult {
	result := &domain.AnalysisResult{
		Status: domain.AnalysisSucceeded,
		Items:  []domain.ScannedLine{},
	}
	if p.AnalyzeResult == nil || len(p.AnalyzeResult.DocumentResults) == 0 {
		return result
	}
	fields := p.AnalyzeResult.DocumentResults[0].Fields

	if raw := strings.TrimSpace(fields["TransactionDate"].ValueDate); raw != "" {
		if date, err := time.Parse(domain.DayKeyLayout, raw); err == nil {
			result.PurchaseDate = &date
		} else {
			slog.Warn("analysis_transaction_date_unreadable", "value", raw, "error", err)
		}
	}

	for _, entry := range fields["Items"].ValueArray {
		name := entry.ValueObject["Name"].stringValue()
		if name == "" {
			name = entry.ValueObject["Description"].stringValue()
		}
		if name == "" {
			continue
		}
		result.Items = append(result.Items, domain.ScannedLine{RawName: name})
	}
	return result
}

func decodePollBody(resp *http.Response, out *pollResponse) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.ErrProtocol, "decode analysis response", err)
	}
	return nil
}
