package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")

	// Scan pipeline kinds. Run returns the first of these and stops.
	ErrTransport      = errors.New("transport failure")
	ErrProtocol       = errors.New("protocol violation")
	ErrTimeout        = errors.New("analysis attempt budget exhausted")
	ErrAnalysisFailed = errors.New("analysis failed")

	ErrScheduling = errors.New("scheduling failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
