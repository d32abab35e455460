package slack

import (
	"github.com/kirillkom/museum-docent/internal/infrastructure/resilience"
)

// Transport failures are retried once the broken session is dropped.
func classifyError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	return resilience.Transient
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	return resilience.WrapTemporary(operation, err, classifyError)
}
