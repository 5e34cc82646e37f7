// Package handler contains the chi HTTP handlers that translate browser and
// API requests to and from the service layer.
package handler

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/Shivanand-hulikatti/enjoycity/internal/service"
	"github.com/Shivanand-hulikatti/enjoycity/internal/session"
	"github.com/Shivanand-hulikatti/enjoycity/internal/upload"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templateFS embed.FS

// Catalog is the public event catalog.
type Catalog interface {
	ListEvents(ctx context.Context, f model.ListFilter) ([]model.Event, error)
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	ProposeEvent(ctx context.Context, in service.EventInput, image io.Reader) (*model.Event, error)
	ListByOwner(ctx context.Context) ([]model.Event, error)
	Categories(ctx context.Context) ([]model.Category, error)
}

// Bookings runs the booking transactions for the caller.
type Bookings interface {
	AttemptBooking(ctx context.Context, eventID int64, quantity string) (int64, error)
	CancelBooking(ctx context.Context, bookingID int64) error
	MyBookings(ctx context.Context) ([]model.BookingDetail, error)
	Ticket(ctx context.Context, bookingID int64) (*model.BookingDetail, error)
}

// Accounts handles sign-up, login and preferences.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
	CurrentUser(ctx context.Context) (*model.User, error)
	SetPreferences(ctx context.Context, categoryIDs []int64) error
	Preferences(ctx context.Context) ([]model.Category, error)
}

// Moderation is the admin back office.
type Moderation interface {
	Dashboard(ctx context.Context) (*service.Dashboard, error)
	Approve(ctx context.Context, id int64) error
	Reject(ctx context.Context, id int64, reason string) error
	CancelEvent(ctx context.Context, id int64) error
	ArchiveEvent(ctx context.Context, id int64) error
	UpdateEvent(ctx context.Context, id int64, in service.EventInput) (*model.Event, error)
	BlockUser(ctx context.Context, userID int64, until *time.Time) error
	UnblockUser(ctx context.Context, userID int64) error
	CreateCategory(ctx context.Context, name string) (*model.Category, error)
	RenameCategory(ctx context.Context, id int64, name string) error
	DeleteCategory(ctx context.Context, id int64) error
}

// Sessions issues and clears session cookies.
type Sessions interface {
	Login(w http.ResponseWriter, u *model.User) error
	Logout(w http.ResponseWriter, r *http.Request) error
	Middleware(next http.Handler) http.Handler
}

// TicketRenderer writes a printable ticket.
type TicketRenderer interface {
	Render(w io.Writer, b *model.BookingDetail) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds every HTTP handler of the site.
type Handler struct {
	catalog  Catalog
	bookings Bookings
	accounts Accounts
	admin    Moderation
	sessions Sessions
	tickets  TicketRenderer
	pinger   Pinger
	loc      *time.Location
	pages    map[string]*template.Template
	log      zerolog.Logger
}

// New builds a Handler and parses its templates.
func New(d Deps) (*Handler, error) {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{
		catalog:  d.Catalog,
		bookings: d.Bookings,
		accounts: d.Accounts,
		admin:    d.Admin,
		sessions: d.Sessions,
		tickets:  d.Tickets,
		pinger:   d.Pinger,
		loc:      loc,
		log:      d.Log,
	}
	pages, err := parsePages(h.funcs())
	if err != nil {
		return nil, err
	}
	h.pages = pages
	return h, nil
}

// parsePages pairs every page template with the shared layout and the
// partials (files starting with an underscore).
func parsePages(funcs template.FuncMap) (map[string]*template.Template, error) {
	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(path.Base(f), ".html")
		if name == "layout" || strings.HasPrefix(name, "_") {
			continue
		}
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/_*.html", f)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

func (h *Handler) funcs() template.FuncMap {
	return template.FuncMap{
		"price": model.FormatCents,
		"when": func(t time.Time) string {
			return t.In(h.loc).Format("Mon 2 Jan 2006, 15:04")
		},
		"inputTime": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return ""
			}
			return t.In(h.loc).Format(dateTimeLayout)
		},
		"thumb": upload.ThumbPath,
		"deref": func(p *int) string {
			if p == nil {
				return ""
			}
			return strconv.Itoa(*p)
		},
		"coord": func(p *float64) string {
			if p == nil {
				return ""
			}
			return strconv.FormatFloat(*p, 'f', -1, 64)
		},
		"km": func(p *float64) string {
			if p == nil {
				return ""
			}
			return strconv.FormatFloat(*p, 'f', 1, 64) + " km"
		},
		"seq": func(from, to int) []int {
			out := make([]int, 0, to-from+1)
			for i := from; i <= to; i++ {
				out = append(out, i)
			}
			return out
		},
	}
}

// view is the value every page template is executed with.
type view struct {
	Title     string
	Principal *session.Principal
	Flash     string
	Error     string
	Data      any
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any, errMsg string) {
	t, ok := h.pages[page]
	if !ok {
		h.log.Error().Str("page", page).Msg("unknown template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	v := view{Title: title, Flash: r.URL.Query().Get("msg"), Error: errMsg, Data: data}
	if p, ok := session.FromContext(r.Context()); ok {
		v.Principal = &p
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		h.log.Error().Err(err).Str("page", page).Msg("render template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.render(w, r, status, "error", http.StatusText(status), nil, msg)
}

// internalError logs err and shows a generic failure page.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	h.renderError(w, r, http.StatusInternalServerError, "Something went wrong. Please try again.")
}

// redirect answers a successful POST with 303 and a flash message.
func redirect(w http.ResponseWriter, r *http.Request, to, msg string) {
	if msg != "" {
		sep := "?"
		if strings.Contains(to, "?") {
			sep = "&"
		}
		to += sep + "msg=" + url.QueryEscape(msg)
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}
