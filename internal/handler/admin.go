package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/go-chi/chi/v5"
)

// AdminDashboard handles GET /admin/.
func (h *Handler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	h.adminDashboard(w, r, http.StatusOK, "")
}

func (h *Handler) adminDashboard(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	d, err := h.admin.Dashboard(r.Context())
	if err != nil {
		st, msg := failure(err)
		if st >= http.StatusInternalServerError {
			h.internalError(w, r, err)
			return
		}
		h.renderError(w, r, st, msg)
		return
	}
	h.render(w, r, status, "admin", "Administration", d, errMsg)
}

// adminDone finishes an admin POST: back to the dashboard with a flash on
// success, or the dashboard re-rendered with the error.
func (h *Handler) adminDone(w http.ResponseWriter, r *http.Request, err error, ok string) {
	if err == nil {
		redirect(w, r, "/admin/", ok)
		return
	}
	status, msg := failure(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("admin action failed")
	}
	h.adminDashboard(w, r, status, msg)
}

// AdminEventAction handles POST /admin/events/{id}/{action}.
func (h *Handler) AdminEventAction(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Event not found.")
		return
	}
	ctx := r.Context()

	var err error
	action := chi.URLParam(r, "action")
	switch action {
	case "approve":
		err = h.admin.Approve(ctx, id)
	case "reject":
		err = h.admin.Reject(ctx, id, r.PostFormValue("reason"))
	case "cancel":
		err = h.admin.CancelEvent(ctx, id)
	case "archive":
		err = h.admin.ArchiveEvent(ctx, id)
	default:
		h.renderError(w, r, http.StatusNotFound, "Page not found.")
		return
	}
	if err == nil {
		h.log.Info().Int64("event_id", id).Str("action", action).Msg("event moderated")
	}
	h.adminDone(w, r, err, "Event "+id64(id)+": "+pastTense(action)+".")
}

type editData struct {
	ID         int64
	Categories []model.Category
	Form       url.Values
}

// AdminEditForm handles GET /admin/events/{id}/edit.
func (h *Handler) AdminEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Event not found.")
		return
	}
	ev, err := h.catalog.GetEvent(r.Context(), id)
	if err != nil {
		status, msg := failure(err)
		h.renderError(w, r, status, msg)
		return
	}
	h.editForm(w, r, http.StatusOK, id, h.eventForm(ev), "")
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request, status int, id int64, form url.Values, errMsg string) {
	cats, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.render(w, r, status, "admin_edit", "Edit event", editData{ID: id, Categories: cats, Form: form}, errMsg)
}

// eventForm fills the edit form with the stored values of ev.
func (h *Handler) eventForm(ev *model.Event) url.Values {
	f := url.Values{}
	f.Set("category_id", id64(ev.CategoryID))
	f.Set("title", ev.Title)
	f.Set("description", ev.Description)
	f.Set("venue", ev.Venue)
	if ev.Latitude != nil {
		f.Set("latitude", strconv.FormatFloat(*ev.Latitude, 'f', -1, 64))
	}
	if ev.Longitude != nil {
		f.Set("longitude", strconv.FormatFloat(*ev.Longitude, 'f', -1, 64))
	}
	f.Set("starts_at", ev.StartsAt.In(h.loc).Format(dateTimeLayout))
	if ev.EndsAt != nil {
		f.Set("ends_at", ev.EndsAt.In(h.loc).Format(dateTimeLayout))
	}
	if ev.TotalSeats != nil {
		f.Set("total_seats", strconv.Itoa(*ev.TotalSeats))
	}
	f.Set("price", model.FormatCents(ev.PriceCents))
	return f
}

// AdminUpdateEvent handles POST /admin/events/{id}/edit.
func (h *Handler) AdminUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Event not found.")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}
	in, err := h.parseEventForm(r.PostForm)
	if err == nil {
		_, err = h.admin.UpdateEvent(r.Context(), id, in)
	}
	if err != nil {
		status, msg := failure(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Int64("event_id", id).Msg("update event failed")
		}
		h.editForm(w, r, status, id, r.PostForm, msg)
		return
	}
	h.log.Info().Int64("event_id", id).Msg("event updated")
	redirect(w, r, "/admin/", "Event "+id64(id)+" updated.")
}

// AdminUserAction handles POST /admin/users/{id}/{action}. An empty
// "until" blocks permanently.
func (h *Handler) AdminUserAction(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "User not found.")
		return
	}
	ctx := r.Context()

	var err error
	switch chi.URLParam(r, "action") {
	case "block":
		until, perr := h.parseDateTime(r.PostFormValue("until"), "until")
		if perr != nil {
			h.adminDone(w, r, perr, "")
			return
		}
		err = h.admin.BlockUser(ctx, id, until)
		if err == nil {
			ev := h.log.Info().Int64("user_id", id)
			if until != nil {
				ev = ev.Time("until", *until)
			}
			ev.Msg("user blocked")
		}
		h.adminDone(w, r, err, "User "+id64(id)+" blocked.")
	case "unblock":
		err = h.admin.UnblockUser(ctx, id)
		h.adminDone(w, r, err, "User "+id64(id)+" unblocked.")
	default:
		h.renderError(w, r, http.StatusNotFound, "Page not found.")
	}
}

// AdminCreateCategory handles POST /admin/categories.
func (h *Handler) AdminCreateCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.admin.CreateCategory(r.Context(), r.PostFormValue("name"))
	if err != nil {
		h.adminDone(w, r, err, "")
		return
	}
	h.adminDone(w, r, nil, "Category "+c.Name+" created.")
}

// AdminCategoryAction handles POST /admin/categories/{id}/{action}.
func (h *Handler) AdminCategoryAction(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Category not found.")
		return
	}
	switch chi.URLParam(r, "action") {
	case "rename":
		err := h.admin.RenameCategory(r.Context(), id, r.PostFormValue("name"))
		h.adminDone(w, r, err, "Category renamed.")
	case "delete":
		err := h.admin.DeleteCategory(r.Context(), id)
		h.adminDone(w, r, err, "Category deleted.")
	default:
		h.renderError(w, r, http.StatusNotFound, "Page not found.")
	}
}

func id64(id int64) string { return strconv.FormatInt(id, 10) }

func pastTense(action string) string {
	switch action {
	case "approve":
		return "approved"
	case "reject":
		return "rejected"
	case "cancel":
		return "cancelled"
	default:
		return strings.TrimSuffix(action, "e") + "ed"
	}
}
