package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/session"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of the router.
type Deps struct {
	Catalog  Catalog
	Bookings Bookings
	Accounts Accounts
	Admin    Moderation
	Sessions Sessions
	Tickets  TicketRenderer
	Pinger   Pinger

	// UploadDir is served read-only under /uploads/.
	UploadDir          string
	CORSOrigins        []string
	RateLimitPerMinute int
	// Location is used to read and show event times. Defaults to UTC.
	Location *time.Location
	Log      zerolog.Logger
}

// NewRouter wires the middleware stack and every route.
func NewRouter(d Deps) (http.Handler, error) {
	h, err := New(d)
	if err != nil {
		return nil, err
	}
	limiter := NewRateLimiter(d.RateLimitPerMinute)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(d.Log))
	r.Use(CORS(d.CORSOrigins))
	r.Use(d.Sessions.Middleware)

	r.Get("/health", h.Health)
	r.Get("/api/events", h.APIListEvents)

	if d.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", noListing(http.FileServer(http.Dir(d.UploadDir)))))
	}

	r.Get("/", h.Index)
	r.Get("/events/{id}", h.ShowEvent)
	r.With(limiter.Limit).Post("/events/{id}/book", h.Book)

	r.Get("/login", h.LoginForm)
	r.With(limiter.Limit).Post("/login", h.Login)
	r.Get("/register", h.RegisterForm)
	r.With(limiter.Limit).Post("/register", h.Register)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(session.RequireUser)
		r.Get("/events/new", h.ProposeForm)
		r.Post("/events/new", h.Propose)
		r.Get("/me/events", h.MyEvents)
		r.Get("/me/bookings", h.MyBookings)
		r.Get("/me/preferences", h.PreferencesForm)
		r.Post("/me/preferences", h.SavePreferences)
		r.Post("/bookings/{id}/cancel", h.CancelBooking)
		r.Get("/bookings/{id}/ticket.pdf", h.Ticket)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(session.RequireAdmin)
		r.Get("/", h.AdminDashboard)
		r.Post("/events/{id}/{action:approve|reject|cancel|archive}", h.AdminEventAction)
		r.Get("/events/{id}/edit", h.AdminEditForm)
		r.Post("/events/{id}/edit", h.AdminUpdateEvent)
		r.Post("/users/{id}/{action:block|unblock}", h.AdminUserAction)
		r.Post("/categories", h.AdminCreateCategory)
		r.Post("/categories/{id}/{action:rename|delete}", h.AdminCategoryAction)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.renderError(w, r, http.StatusNotFound, "Page not found.")
	})
	return r, nil
}

// noListing hides directory indexes of the upload tree.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
