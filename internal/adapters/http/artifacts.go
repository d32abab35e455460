package httpadapter

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

type searchResponse struct {
	Count     int                 `json:"count"`
	Artifacts *domain.ArtifactSet `json:"artifacts"`
}

func (rt *Router) artifactImage(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "artifactID")
	artifact, ok := rt.database.Get(id)
	if !ok {
		rt.writeDomainError(w, r, domain.WrapError(domain.ErrArtifactNotFound, "artifact image", fmt.Errorf("id=%s", id)))
		return
	}

	rc, err := rt.images.OpenImage(r.Context(), artifact.ImagePath)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	head, _ := br.Peek(512)
	w.Header().Set("Content-Type", http.DetectContentType(head))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, br); err != nil {
		rt.opts.Logger.Warn("artifact_image_write_failed", "artifact_id", id, "error", err)
	}
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string `json:"query"`
		Utterance string `json:"utterance"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		rt.writeDomainError(w, r, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required")))
		return
	}
	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		utterance = query
	}

	found, err := rt.searcher.Search(r.Context(), query, utterance, rt.database)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Count: found.Len(), Artifacts: found})
}
