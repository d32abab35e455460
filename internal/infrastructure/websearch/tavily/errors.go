package tavily

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/infrastructure/resilience"
)

type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tavily status: %s", e.Status)
	}
	return fmt.Sprintf("tavily status: %s: %s", e.Status, e.Body)
}

func classifyError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.Transient
		}
		return resilience.ErrorClassification{RecordFailure: statusErr.StatusCode >= 500}
	}
	return resilience.Permanent
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	err = resilience.WrapTemporary("tavily search", err, classifyError)
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	return fmt.Errorf("tavily search: %w", err)
}
