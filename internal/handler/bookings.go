package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/Shivanand-hulikatti/enjoycity/internal/service"
)

// MyBookings handles GET /me/bookings.
func (h *Handler) MyBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookings.MyBookings(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "my_bookings", "My bookings", bookings, "")
}

// CancelBooking handles POST /bookings/{id}/cancel.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Booking not found.")
		return
	}
	if err := h.bookings.CancelBooking(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrEventUnavailable) {
			h.renderError(w, r, http.StatusConflict, "Bookings for past events cannot be cancelled.")
			return
		}
		status, msg := failure(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Int64("booking_id", id).Msg("cancel booking failed")
		}
		h.renderError(w, r, status, msg)
		return
	}
	redirect(w, r, "/me/bookings", "Booking cancelled.")
}

// Ticket handles GET /bookings/{id}/ticket.pdf.
func (h *Handler) Ticket(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Booking not found.")
		return
	}
	b, err := h.bookings.Ticket(r.Context(), id)
	if err != nil {
		status, msg := failure(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Int64("booking_id", id).Msg("load ticket failed")
		}
		h.renderError(w, r, status, msg)
		return
	}

	var buf bytes.Buffer
	if err := h.tickets.Render(&buf, b); err != nil {
		h.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="ticket-`+b.Reference+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
