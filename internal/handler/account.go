package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sakif/account-portal/internal/middleware"
	"github.com/sakif/account-portal/internal/model"
	"github.com/sakif/account-portal/internal/service"
)

// DefaultMaxUploadBytes caps a registration request body.
const DefaultMaxUploadBytes int64 = 5 << 20

// Accounts is satisfied by *service.AccountService.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// AccountConfig holds the HTTP-level settings of AccountHandler.
type AccountConfig struct {
	// SessionTTL becomes the session cookie's Max-Age.
	SessionTTL time.Duration
	// CookieSecure marks the session cookie Secure (HTTPS only).
	CookieSecure bool
	// MaxUploadBytes caps the registration request body.
	MaxUploadBytes int64
}

// AccountHandler serves the register, login, home and logout pages.
//
// HANDLER RESPONSIBILITIES:
//   - ShowRegister / Register → the registration form and its submission
//   - ShowLogin / Login       → the login form; a success sets the session cookie
//   - Home                    → the protected profile page
//   - Logout                  → destroys the session and clears the cookie
type AccountHandler struct {
	accounts Accounts
	pages    *Pages
	cfg      AccountConfig
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler. All dependencies are
// injected here; the handler has no knowledge of how they're constructed.
func NewAccountHandler(accounts Accounts, pages *Pages, cfg AccountConfig, logger *slog.Logger) *AccountHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &AccountHandler{
		accounts: accounts,
		pages:    pages,
		cfg:      cfg,
		logger:   logger,
	}
}

// ShowRegister renders the empty registration form.
//
// HTTP: GET /register
func (h *AccountHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, http.StatusOK, pageRegister, pageData{Title: "Register"})
}

// Register handles the registration form.
//
// HTTP: POST /register (multipart/form-data, file field "image")
//
// On success the visitor is sent to /login. On failure the form is shown
// again with the non-secret fields filled in.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.cfg.MaxUploadBytes {
		h.renderTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	err := r.ParseMultipartForm(h.cfg.MaxUploadBytes)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, http.ErrNotMultipart):
		// A non-multipart post still has its text fields; the missing image
		// is reported by validation.
	case errors.As(err, &tooLarge), errors.Is(err, multipart.ErrMessageTooLarge):
		h.renderTooLarge(w)
		return
	default:
		h.logger.Info("register: unreadable form", slog.String("error", err.Error()))
		h.pages.render(w, http.StatusBadRequest, pageRegister, pageData{
			Title: "Register",
			Error: service.MissingFieldsMessage,
		})
		return
	}

	in := service.RegisterInput{
		Username:  r.FormValue("username"),
		Password:  r.FormValue("password"),
		FirstName: r.FormValue("firstName"),
		LastName:  r.FormValue("lastName"),
		Email:     r.FormValue("email"),
		BirthDate: r.FormValue("birthDate"),
	}

	if file, header, err := r.FormFile("image"); err == nil {
		data, readErr := io.ReadAll(file)
		file.Close()
		if readErr != nil {
			h.logger.Error("register: reading upload", slog.String("error", readErr.Error()))
			h.pages.render(w, http.StatusInternalServerError, pageRegister, pageData{
				Title: "Register",
				Error: genericErrorMessage,
				Form:  registerEcho(in),
			})
			return
		}
		in.ImageName = header.Filename
		in.ImageData = data
	}

	if _, err := h.accounts.Register(r.Context(), in); err != nil {
		status, message := errorStatus(err)
		logFailure(h.logger, r, status, err)
		h.pages.render(w, status, pageRegister, pageData{
			Title: "Register",
			Error: message,
			Form:  registerEcho(in),
		})
		return
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// ShowLogin renders the login form.
//
// HTTP: GET /login
func (h *AccountHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, http.StatusOK, pageLogin, pageData{Title: "Log in"})
}

// Login handles the login form.
//
// HTTP: POST /login
//
// COOKIE:
// The signed session token goes into an HttpOnly, SameSite=Lax cookie whose
// Max-Age matches the server-side session lifetime. Secure is set from
// configuration so the cookie still works on plain-HTTP localhost.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.pages.render(w, http.StatusBadRequest, pageLogin, pageData{
			Title: "Log in",
			Error: service.InvalidLoginMessage,
		})
		return
	}

	username := r.PostFormValue("username")
	result, err := h.accounts.Login(r.Context(), service.LoginInput{
		Username:      username,
		Password:      r.PostFormValue("password"),
		PreviousToken: middleware.SessionToken(r),
	})
	if err != nil {
		status, message := errorStatus(err)
		logFailure(h.logger, r, status, err)
		h.pages.render(w, status, pageLogin, pageData{
			Title: "Log in",
			Error: message,
			Form:  formValues{Username: username},
		})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(h.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

// Home renders the logged-in user's profile. It must be mounted behind
// middleware.RequireSession.
//
// HTTP: GET /home
func (h *AccountHandler) Home(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	h.pages.render(w, http.StatusOK, pageHome, pageData{
		Title: "Home",
		User:  user,
	})
}

// Logout destroys the session and clears the cookie.
//
// HTTP: GET /logout
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), middleware.SessionToken(r)); err != nil {
		h.logger.Error("logout: destroying session", slog.String("error", err.Error()))
	}

	// Clear the cookie even if the store failed, so the browser stops
	// presenting it.
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AccountHandler) renderTooLarge(w http.ResponseWriter) {
	h.pages.render(w, http.StatusRequestEntityTooLarge, pageRegister, pageData{
		Title: "Register",
		Error: uploadTooLargeMessage,
	})
}

func registerEcho(in service.RegisterInput) formValues {
	return formValues{
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		BirthDate: in.BirthDate,
	}
}
