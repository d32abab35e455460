package httpadapter

import (
	"net/http"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

type errorMapping struct {
	kind   error
	status int
	code   string
}

// First match wins.
var errorMappings = []errorMapping{
	{kind: domain.ErrInvalidInput, status: http.StatusBadRequest, code: "invalid_input"},
	{kind: domain.ErrSessionNotFound, status: http.StatusNotFound, code: "session_not_found"},
	{kind: domain.ErrArtifactNotFound, status: http.StatusNotFound, code: "artifact_not_found"},
	{kind: domain.ErrReservationNotFound, status: http.StatusNotFound, code: "reservation_not_found"},
	{kind: domain.ErrTemporary, status: http.StatusServiceUnavailable, code: "temporarily_unavailable"},
	{kind: domain.ErrEmbeddingService, status: http.StatusBadGateway, code: "embedding_failed"},
	{kind: domain.ErrParse, status: http.StatusBadGateway, code: "upstream_parse_failed"},
}

func classifyDomainError(err error) (status int, code string) {
	for _, m := range errorMappings {
		if domain.IsKind(err, m.kind) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func mapErrorToHTTPStatus(err error) int {
	status, _ := classifyDomainError(err)
	return status
}
