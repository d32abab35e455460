package domain

import (
	"errors"
	"fmt"
)

var (
	ErrLoad             = errors.New("collection load failed")
	ErrEmbeddingService = errors.New("embedding service failure")
	ErrParse            = errors.New("relevance verdict parse failed")

	ErrArtifactNotFound    = errors.New("artifact not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTemporary           = errors.New("temporary failure")
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
