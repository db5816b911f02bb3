// Package dashboard renders the read-only landing statistics. Counts are
// served from a short-lived Redis cache; a singleflight group keeps
// concurrent misses from stampeding the database.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/rollcall-app/rollcall/internal/account"
	"github.com/rollcall-app/rollcall/internal/platform/cache"
	"github.com/rollcall-app/rollcall/internal/shared"
	"github.com/rollcall-app/rollcall/internal/view"
)

const (
	statsCacheKey = "dashboard:stats"
	statsCacheTTL = time.Minute
)

// Stats holds the account counts shown on the dashboard.
type Stats struct {
	Active  int64 `json:"active"`
	Pending int64 `json:"pending"`
	Blocked int64 `json:"blocked"`
}

// Handler renders the dashboard page.
type Handler struct {
	logger      *slog.Logger
	accounts    *account.Service
	redisClient *redis.Client
	templates   *view.Engine
	csrfManager *shared.CSRFManager
	group       singleflight.Group
}

// NewHandler constructs a Handler. redisClient may be nil; stats then skip
// the cache.
func NewHandler(logger *slog.Logger, accounts *account.Service, redisClient *redis.Client, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:      logger,
		accounts:    accounts,
		redisClient: redisClient,
		templates:   templates,
		csrfManager: csrf,
	}
}

// ServeHome renders the dashboard for an authenticated session and the
// landing page otherwise.
func (h *Handler) ServeHome(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		http.Redirect(w, r, "/welcome", http.StatusSeeOther)
		return
	}

	stats, err := h.loadStats(r.Context())
	if err != nil {
		h.logger.Error("dashboard stats", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	data := view.TemplateData{
		Title:       "Dashboard",
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        stats,
	}
	if err := h.templates.Render(w, "pages/home.html", data); err != nil {
		h.logger.Error("render home", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// ServeWelcome renders the landing page for unauthenticated visitors.
func (h *Handler) ServeWelcome(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:     "Welcome",
		CSRFToken: csrfToken,
		Flash:     flash,
	}
	if err := h.templates.Render(w, "pages/landing.html", data); err != nil {
		h.logger.Error("render landing", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) loadStats(ctx context.Context) (Stats, error) {
	if h.redisClient != nil {
		if data, err := cache.Bytes(ctx, h.redisClient, statsCacheKey); err == nil {
			var stats Stats
			if err := json.Unmarshal(data, &stats); err == nil {
				return stats, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			h.logger.Warn("stats cache read", slog.Any("error", err))
		}
	}

	v, err, _ := h.group.Do(statsCacheKey, func() (any, error) {
		counts, err := h.accounts.Counts(ctx)
		if err != nil {
			return Stats{}, err
		}
		stats := Stats{
			Active:  counts[account.StatusActive],
			Pending: counts[account.StatusPending],
			Blocked: counts[account.StatusBlocked],
		}
		if h.redisClient != nil {
			if data, err := json.Marshal(stats); err == nil {
				if err := cache.Put(ctx, h.redisClient, statsCacheKey, data, statsCacheTTL); err != nil {
					h.logger.Warn("stats cache write", slog.Any("error", err))
				}
			}
		}
		return stats, nil
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}
