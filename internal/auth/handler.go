// Package auth wires the sign-in flows: a credentials form and the Google
// OAuth redirect/callback pair. Session establishment happens here and only
// for accepted sign-ins; pending and blocked accounts surface as flash
// messages and never get a session.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rollcall-app/rollcall/internal/account"
	"github.com/rollcall-app/rollcall/internal/auth/google"
	"github.com/rollcall-app/rollcall/internal/observability"
	"github.com/rollcall-app/rollcall/internal/shared"
	"github.com/rollcall-app/rollcall/internal/view"
)

const oauthStateKey = "oauth_state"

// PendingNotifier enqueues a notification when a self-registered account is
// created. Satisfied by jobs.Client; nil disables notifications.
type PendingNotifier interface {
	EnqueueAccountPendingNotify(ctx context.Context, email, name string) error
}

// Handler wires HTTP endpoints for sign-in flows.
type Handler struct {
	logger         *slog.Logger
	accounts       *account.Service
	google         *google.Provider
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	metrics        *observability.Metrics
	notifier       PendingNotifier
}

// NewHandler constructs a Handler instance. google, metrics and notifier may
// be nil.
func NewHandler(logger *slog.Logger, accounts *account.Service, provider *google.Provider, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, metrics *observability.Metrics, notifier PendingNotifier) *Handler {
	return &Handler{
		logger:         logger,
		accounts:       accounts,
		google:         provider,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		metrics:        metrics,
		notifier:       notifier,
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/google", h.googleStart)
	r.Get("/google/callback", h.googleCallback)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, loginPageData{Form: loginForm{}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	formErrors := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fieldErr := range fieldErrors {
				formErrors[fieldErr.Field()] = fieldErr.Error()
			}
		}
	}

	if len(formErrors) == 0 {
		decision, err := h.accounts.SignIn(r.Context(), account.ExternalIdentity{
			Email:    form.Email,
			Password: form.Password,
			Provider: account.ProviderCredentials,
		})
		if err != nil {
			switch {
			case errors.Is(err, account.ErrUnknownAccount),
				errors.Is(err, account.ErrInvalidCredentials),
				errors.Is(err, account.ErrInvalidIdentity):
				// One message for every credential failure; the form must
				// not reveal whether the email has an account.
				formErrors["general"] = "Email or password is invalid"
				h.observe("failed")
			default:
				h.logger.Error("credential sign-in", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		} else {
			h.finishSignIn(w, r, decision)
			return
		}
	}

	h.renderLogin(w, r, http.StatusBadRequest, loginPageData{Form: form, Errors: formErrors})
}

func (h *Handler) googleStart(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	state := uuid.NewString()
	sess.Set(oauthStateKey, state)
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) googleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	state := r.URL.Query().Get("state")
	expected := sess.Get(oauthStateKey)
	sess.Delete(oauthStateKey)
	if state == "" || state != expected {
		h.logger.Warn("oauth state mismatch")
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Google sign-in was cancelled"})
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}

	accessToken, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("google exchange", slog.Any("error", err))
		h.observe("failed")
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Google sign-in failed, try again"})
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	profile, err := h.google.UserInfo(r.Context(), accessToken)
	if err != nil {
		h.logger.Error("google userinfo", slog.Any("error", err))
		h.observe("failed")
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Google sign-in failed, try again"})
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}

	decision, err := h.accounts.SignIn(r.Context(), account.ExternalIdentity{
		Email:      profile.Email,
		Name:       profile.Name,
		Provider:   account.ProviderGoogle,
		RawProfile: profile.Raw(),
	})
	if err != nil {
		if errors.Is(err, account.ErrInvalidIdentity) {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Google did not supply a usable email"})
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		h.logger.Error("google sign-in", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.finishSignIn(w, r, decision)
}

// finishSignIn translates a sign-in decision into session state and a
// redirect. Only OutcomeAccepted establishes a session.
func (h *Handler) finishSignIn(w http.ResponseWriter, r *http.Request, decision account.Decision) {
	sess := shared.SessionFromContext(r.Context())
	h.observe(string(decision.Outcome))

	switch decision.Outcome {
	case account.OutcomeAccepted:
		if sess == nil {
			h.logger.Error("session missing during sign-in")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		sess.SetUser(strconv.FormatInt(decision.Account.ID, 10))
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + decision.Account.Name})
		http.Redirect(w, r, "/", http.StatusSeeOther)

	case account.OutcomeCreated:
		if h.notifier != nil {
			if err := h.notifier.EnqueueAccountPendingNotify(r.Context(), decision.Account.Email, decision.Account.Name); err != nil {
				h.logger.Warn("enqueue pending notify", slog.Any("error", err))
			}
		}
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "warning", Message: "Your account was created and is waiting for approval"})
		}
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)

	case account.OutcomeRejectedPending:
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "warning", Message: "Your account is still waiting for approval"})
		}
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)

	case account.OutcomeRejectedBlocked:
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Your account has been blocked, contact an administrator"})
		}
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)

	default:
		h.logger.Error("unexpected sign-in outcome", slog.String("outcome", string(decision.Outcome)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		if status == http.StatusOK {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

func (h *Handler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveSignIn(outcome)
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// GoogleCallbackForTest exposes the OAuth callback for tests.
func (h *Handler) GoogleCallbackForTest(w http.ResponseWriter, r *http.Request) {
	h.googleCallback(w, r)
}
