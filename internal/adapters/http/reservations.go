package httpadapter

import (
	"fmt"
	"net/http"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

func (rt *Router) reservationOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.reservations.Options(rt.opts.Now()))
}

func (rt *Router) submitReservation(w http.ResponseWriter, r *http.Request) {
	var app domain.ReservationApplication
	if !decodeJSON(w, r, &app) {
		return
	}

	reservation, err := rt.reservations.Submit(r.Context(), app)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/reservations/%s", reservation.ID))
	writeJSON(w, http.StatusAccepted, reservation)
}

func (rt *Router) getReservation(w http.ResponseWriter, r *http.Request) {
	reservation, err := rt.reservations.Get(r.Context(), pathParam(r, "reservationID"))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}
