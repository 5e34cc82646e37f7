package handler

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/Shivanand-hulikatti/enjoycity/internal/service"
	"github.com/Shivanand-hulikatti/enjoycity/internal/upload"
)

type indexData struct {
	Events     []model.Event
	Categories []model.Category
	Query      url.Values
	PrevURL    string
	NextURL    string
}

// Index handles GET /, the public listing with its search form.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := indexData{Query: q}

	cats, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	data.Categories = cats

	f, err := h.parseFilter(q)
	if err != nil {
		status, msg := failure(err)
		h.render(w, r, status, "index", "Events", data, msg)
		return
	}
	events, err := h.catalog.ListEvents(r.Context(), f)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	data.Events = events

	page := f.Normalize()
	if page.Offset > 0 {
		data.PrevURL = pageURL(q, max(page.Offset-page.Limit, 0))
	}
	if len(events) == page.Limit {
		data.NextURL = pageURL(q, page.Offset+page.Limit)
	}
	h.render(w, r, http.StatusOK, "index", "Events", data, "")
}

func pageURL(q url.Values, offset int) string {
	next := url.Values{}
	for k, v := range q {
		if k != "offset" && k != "msg" {
			next[k] = v
		}
	}
	if offset > 0 {
		next.Set("offset", strconv.Itoa(offset))
	}
	if len(next) == 0 {
		return "/"
	}
	return "/?" + next.Encode()
}

type eventData struct {
	Event       *model.Event
	Quantity    string
	MaxQuantity int
}

func (h *Handler) showEvent(w http.ResponseWriter, r *http.Request, id int64, status int, quantity, errMsg string) {
	ev, err := h.catalog.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			msg := "Event not found."
			if errMsg != "" {
				msg = errMsg
			}
			h.renderError(w, r, http.StatusNotFound, msg)
			return
		}
		h.internalError(w, r, err)
		return
	}
	if quantity == "" {
		quantity = "1"
	}
	h.render(w, r, status, "event", ev.Title, eventData{Event: ev, Quantity: quantity, MaxQuantity: model.MaxQuantity}, errMsg)
}

// ShowEvent handles GET /events/{id}.
func (h *Handler) ShowEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Event not found.")
		return
	}
	h.showEvent(w, r, id, http.StatusOK, "", "")
}

// Book handles POST /events/{id}/book.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Event not found.")
		return
	}
	quantity := r.PostFormValue("quantity")

	_, err := h.bookings.AttemptBooking(r.Context(), id, quantity)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			http.Redirect(w, r, loginURL("/events/"+strconv.FormatInt(id, 10)), http.StatusSeeOther)
			return
		}
		status, msg := failure(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Int64("event_id", id).Msg("booking failed")
		}
		h.showEvent(w, r, id, status, quantity, msg)
		return
	}
	redirect(w, r, "/me/bookings", "Booking confirmed.")
}

type proposeData struct {
	Categories []model.Category
	Form       url.Values
}

// ProposeForm handles GET /events/new.
func (h *Handler) ProposeForm(w http.ResponseWriter, r *http.Request) {
	h.proposeForm(w, r, http.StatusOK, url.Values{}, "")
}

func (h *Handler) proposeForm(w http.ResponseWriter, r *http.Request, status int, form url.Values, errMsg string) {
	cats, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.render(w, r, status, "propose", "Propose an event", proposeData{Categories: cats, Form: form}, errMsg)
}

// Propose handles POST /events/new (multipart, optional image).
func (h *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.proposeForm(w, r, http.StatusRequestEntityTooLarge, url.Values{}, "The upload is too large.")
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			h.proposeForm(w, r, http.StatusBadRequest, url.Values{}, "The form could not be read.")
			return
		}
	}
	form := r.PostForm

	in, err := h.parseEventForm(form)
	if err != nil {
		status, msg := failure(err)
		h.proposeForm(w, r, status, form, msg)
		return
	}

	var image io.Reader
	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		image = file
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		h.proposeForm(w, r, http.StatusBadRequest, form, "The image could not be read.")
		return
	}

	if _, err := h.catalog.ProposeEvent(r.Context(), in, image); err != nil {
		status, msg := failure(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("propose event failed")
		}
		h.proposeForm(w, r, status, form, msg)
		return
	}
	redirect(w, r, "/me/events", "Thanks! Your event is waiting for review.")
}

// MyEvents handles GET /me/events.
func (h *Handler) MyEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.catalog.ListByOwner(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "my_events", "My proposals", events, "")
}
