package httpadapter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

type messageResponse struct {
	Reply string `json:"reply"`
	domain.SessionView
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	view, err := rt.sessions.Start(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := rt.sessions.View(pathParam(r, "sessionID"))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.Delete(pathParam(r, "sessionID")); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) moveSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction string `json:"direction"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var next bool
	switch strings.ToLower(strings.TrimSpace(req.Direction)) {
	case "next":
		next = true
	case "previous", "prev":
		next = false
	default:
		rt.writeDomainError(w, r, domain.WrapError(domain.ErrInvalidInput, "move session",
			fmt.Errorf("direction must be next or previous, got %q", req.Direction)))
		return
	}

	view, err := rt.sessions.Move(r.Context(), pathParam(r, "sessionID"), next)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) postMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, view, err := rt.sessions.Answer(r.Context(), pathParam(r, "sessionID"), req.Message)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Reply: reply, SessionView: view})
}
