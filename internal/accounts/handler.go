// Package accounts exposes the administrative surface for account approval
// and blocking: an HTML approval queue plus JSON endpoints.
package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rollcall-app/rollcall/internal/account"
	"github.com/rollcall-app/rollcall/internal/platform/httpx"
	"github.com/rollcall-app/rollcall/internal/shared"
	"github.com/rollcall-app/rollcall/internal/view"
)

// IdempotencyGuard dedupes mutations by a client-supplied key scoped to an
// operation and target. Satisfied by shared.IdempotencyStore.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module, ref string) error
	Delete(ctx context.Context, key string) error
}

// Handler wires HTTP endpoints for account administration.
type Handler struct {
	logger      *slog.Logger
	service     *account.Service
	templates   *view.Engine
	csrfManager *shared.CSRFManager
	idempotency IdempotencyGuard
	approvals   *shared.ApprovalRecorder
	audit       *shared.AuditLogger
	validator   *validator.Validate
}

// NewHandler constructs a Handler. idempotency, approvals and audit may be nil.
func NewHandler(logger *slog.Logger, service *account.Service, templates *view.Engine, csrf *shared.CSRFManager, idempotency IdempotencyGuard, approvals *shared.ApprovalRecorder, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		templates:   templates,
		csrfManager: csrf,
		idempotency: idempotency,
		approvals:   approvals,
		audit:       audit,
		validator:   validator.New(),
	}
}

// MountRoutes registers account administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showAccounts)
	r.Get("/me", h.showSelf)
	r.Get("/api", h.listAccounts)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/block", h.block)
	r.Post("/{id}/role", h.changeRole)
	r.Get("/{id}/history", h.history)
}

// caller loads the signed-in account for the request. Only active accounts
// may act; everyone else gets the same Forbidden shape.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (*account.Account, bool) {
	id, ok := shared.CurrentAccountID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in first")
		return nil, false
	}
	acct, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logger.Warn("load caller account", slog.Any("error", err))
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in first")
		return nil, false
	}
	if acct.Status != account.StatusActive {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		return nil, false
	}
	return acct, true
}

type accountPageData struct {
	Accounts []account.Account
}

func (h *Handler) showAccounts(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := account.Authorize(caller.Role, account.ActionApprove); err != nil {
		httpx.RespondError(w, err)
		return
	}

	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Accounts",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        accountPageData{Accounts: list},
	}
	if err := h.templates.Render(w, "pages/accounts.html", data); err != nil {
		h.logger.Error("render accounts", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// showSelf returns the signed-in account. Every role may read itself.
func (h *Handler) showSelf(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := account.Authorize(caller.Role, account.ActionReadSelf); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJSON(caller))
}

type accountJSON struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	Provider  string `json:"provider"`
	LastLogin string `json:"lastLogin,omitempty"`
}

func toJSON(a *account.Account) accountJSON {
	out := accountJSON{
		ID:       a.ID,
		Email:    a.Email,
		Name:     a.Name,
		Role:     string(a.Role),
		Status:   string(a.Status),
		Provider: string(a.Provider),
	}
	if !a.LastLogin.IsZero() {
		out.LastLogin = a.LastLogin.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := account.Authorize(caller.Role, account.ActionApprove); err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]accountJSON, len(list))
	for i := range list {
		out[i] = toJSON(&list[i])
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "approve", account.ActionApprove, func(caller *account.Account, id int64) (*account.Account, error) {
		return h.service.Approve(r.Context(), caller, id)
	})
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "block", account.ActionBlock, func(caller *account.Account, id int64) (*account.Account, error) {
		return h.service.Block(r.Context(), caller, id)
	})
}

type roleForm struct {
	Role string `json:"role" validate:"required,oneof=admin teacher student"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := targetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}

	var form roleForm
	if wantsJSON(r) {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid form")
			return
		}
		form.Role = r.PostFormValue("role")
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role must be admin, teacher or student")
		return
	}

	updated, err := h.service.ChangeRole(r.Context(), caller, id, account.Role(form.Role))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondMutation(w, r, updated, "Role updated")
}

// mutate factors the shared shape of approve and block: caller resolution,
// authorization, optional idempotency key, then a redirect or JSON body.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, action string, act account.Action, fn func(*account.Account, int64) (*account.Account, error)) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := targetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}

	// Deny before consulting the idempotency store: the conflict path
	// answers with the target's state, which an unauthorized caller must
	// never see.
	if err := account.Authorize(caller.Role, act); err != nil {
		h.respondMutationError(w, r, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		switch err := h.idempotency.CheckAndInsert(r.Context(), key, "accounts."+action, strconv.FormatInt(id, 10)); {
		case err == nil:
		case errors.Is(err, shared.ErrIdempotencyConflict):
			// Approve and block are idempotent; report the current
			// state instead of failing the retry.
			acct, gerr := h.service.Get(r.Context(), id)
			if gerr != nil {
				httpx.RespondError(w, gerr)
				return
			}
			h.respondMutation(w, r, acct, "Already processed")
			return
		case errors.Is(err, shared.ErrIdempotencyMismatch):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Idempotency Conflict", "Idempotency-Key was already used for a different request")
			return
		default:
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
	}

	updated, err := fn(caller, id)
	if err != nil {
		if key != "" && h.idempotency != nil {
			// Release the key so an honest retry is not swallowed by the
			// failed attempt.
			if derr := h.idempotency.Delete(r.Context(), key); derr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		h.logger.Warn("account "+action, slog.Int64("target", id), slog.Any("error", err))
		h.respondMutationError(w, r, err)
		return
	}
	h.respondMutation(w, r, updated, "Account "+pastTense(action))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := account.Authorize(caller.Role, account.ActionApprove); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := targetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	ref := strconv.FormatInt(id, 10)
	out := struct {
		Approvals []shared.ApprovalLog `json:"approvals"`
		Audit     []shared.AuditLog    `json:"audit"`
	}{Approvals: []shared.ApprovalLog{}, Audit: []shared.AuditLog{}}

	if h.approvals != nil {
		logs, err := h.approvals.List(r.Context(), "accounts", ref)
		if err != nil {
			h.logger.Error("approval history", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if logs != nil {
			out.Approvals = logs
		}
	}
	if h.audit != nil {
		logs, err := h.audit.ListByEntity(r.Context(), "account", ref, 50)
		if err != nil {
			h.logger.Error("audit history", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if logs != nil {
			out.Audit = logs
		}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondMutation(w http.ResponseWriter, r *http.Request, acct *account.Account, flash string) {
	if wantsJSON(r) {
		httpx.JSON(w, http.StatusOK, toJSON(acct))
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: flash})
	}
	http.Redirect(w, r, "/accounts", http.StatusSeeOther)
}

func (h *Handler) respondMutationError(w http.ResponseWriter, r *http.Request, err error) {
	if wantsJSON(r) {
		httpx.RespondError(w, err)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		msg := "Action failed"
		switch {
		case errors.Is(err, account.ErrForbidden):
			msg = "You are not allowed to do that"
		case errors.Is(err, account.ErrNotFound):
			msg = "Account not found"
		case errors.Is(err, account.ErrUnsupportedTransition):
			msg = "That status change is not allowed"
		}
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: msg})
	}
	http.Redirect(w, r, "/accounts", http.StatusSeeOther)
}

func targetID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

func pastTense(action string) string {
	switch action {
	case "approve":
		return "approved"
	case "block":
		return "blocked"
	}
	return action + "d"
}
