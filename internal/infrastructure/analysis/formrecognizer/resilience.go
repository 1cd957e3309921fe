package formrecognizer

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/infrastructure/resilience"
)

// classifyAnalysisError never marks errors retryable: submit is not safe to
// repeat and poll retries belong to the orchestrator's attempt budget. It only
// decides what counts against the circuit breaker.
func classifyAnalysisError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{RecordFailure: false}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{RecordFailure: isBackendHTTPFailure(statusErr.StatusCode)}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{RecordFailure: true}
	}
	if domain.IsKind(err, domain.ErrProtocol) {
		return resilience.ErrorClassification{RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: false}
}

func wrapOpenCircuit(operation string, err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTransport, operation, domain.WrapError(domain.ErrTemporary, "circuit open", err))
	}
	return err
}

func isBackendHTTPFailure(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
