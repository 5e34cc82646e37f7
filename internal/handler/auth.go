package handler

import (
	"net/http"
	"net/url"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/Shivanand-hulikatti/enjoycity/internal/service"
)

type authData struct {
	Email       string
	DisplayName string
	Next        string
}

// LoginForm handles GET /login.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login", "Log in", authData{Next: safeNext(r.URL.Query().Get("next"))}, "")
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	next := safeNext(r.PostFormValue("next"))

	u, err := h.accounts.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		status, msg := failure(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("login failed")
		}
		h.render(w, r, status, "login", "Log in", authData{Email: email, Next: next}, msg)
		return
	}
	if err := h.sessions.Login(w, u); err != nil {
		h.internalError(w, r, err)
		return
	}
	h.log.Info().Int64("user_id", u.ID).Msg("user logged in")
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// RegisterForm handles GET /register.
func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register", "Sign up", authData{}, "")
}

// Register handles POST /register and signs the new user in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	in := service.RegisterInput{
		Email:       r.PostFormValue("email"),
		DisplayName: r.PostFormValue("display_name"),
		Password:    r.PostFormValue("password"),
	}
	u, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		status, msg := failure(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("register failed")
		}
		h.render(w, r, status, "register", "Sign up", authData{Email: in.Email, DisplayName: in.DisplayName}, msg)
		return
	}
	if err := h.sessions.Login(w, u); err != nil {
		h.internalError(w, r, err)
		return
	}
	h.log.Info().Int64("user_id", u.ID).Msg("user registered")
	redirect(w, r, "/", "Welcome to EnjoyCity, "+u.DisplayName+"!")
}

// Logout handles POST /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		h.log.Warn().Err(err).Msg("logout")
	}
	redirect(w, r, "/", "You are logged out.")
}

type preferenceRow struct {
	Category model.Category
	Rank     int
}

type preferencesData struct {
	User *model.User
	Rows []preferenceRow
}

// PreferencesForm handles GET /me/preferences. Preferred categories come
// first in rank order, followed by the rest.
func (h *Handler) PreferencesForm(w http.ResponseWriter, r *http.Request) {
	h.preferencesForm(w, r, http.StatusOK, "")
}

func (h *Handler) preferencesForm(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	u, err := h.accounts.CurrentUser(r.Context())
	if err != nil {
		st, msg := failure(err)
		if st >= http.StatusInternalServerError {
			h.internalError(w, r, err)
			return
		}
		h.renderError(w, r, st, msg)
		return
	}
	prefs, err := h.accounts.Preferences(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	all, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	rows := make([]preferenceRow, 0, len(all))
	ranked := make(map[int64]bool, len(prefs))
	for i, c := range prefs {
		rows = append(rows, preferenceRow{Category: c, Rank: i + 1})
		ranked[c.ID] = true
	}
	for _, c := range all {
		if !ranked[c.ID] {
			rows = append(rows, preferenceRow{Category: c})
		}
	}
	h.render(w, r, status, "preferences", "My preferences", preferencesData{User: u, Rows: rows}, errMsg)
}

// SavePreferences handles POST /me/preferences.
func (h *Handler) SavePreferences(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.preferencesForm(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}
	ids, err := parseRanks(r.PostForm)
	if err == nil {
		err = h.accounts.SetPreferences(r.Context(), ids)
	}
	if err != nil {
		status, msg := failure(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("save preferences failed")
		}
		h.preferencesForm(w, r, status, msg)
		return
	}
	redirect(w, r, "/me/preferences", "Preferences saved.")
}

func loginURL(next string) string {
	return "/login?next=" + url.QueryEscape(next)
}
