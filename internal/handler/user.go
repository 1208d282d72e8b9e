package handler

import (
	"log/slog"
	"net/http"

	"github.com/writique/writique/internal/auth"
	"github.com/writique/writique/internal/service"
)

// UserHandler serves the authenticated-user and admin user surface.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleMe returns the caller's own profile.
//
// GET /api/users/me?populate=favorites expands favorite ids into posts;
// favorites pointing at deleted posts are omitted from the expansion.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	populate := r.URL.Query().Get("populate") == "favorites"
	profile, err := h.users.Profile(r.Context(), user, populate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// HandleAddFavorite marks a post as one of the caller's favorites.
// Idempotent: favoriting twice leaves one entry.
//
// POST /api/users/me/favorites/{postId}
func (h *UserHandler) HandleAddFavorite(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	favorites, err := h.users.AddFavorite(r.Context(), user, r.PathValue("postId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"favorites": favorites,
	})
}

// HandleRemoveFavorite unmarks a favorite; removing one that was never set
// still succeeds.
//
// DELETE /api/users/me/favorites/{postId}
func (h *UserHandler) HandleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	favorites, err := h.users.RemoveFavorite(r.Context(), user, r.PathValue("postId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"favorites": favorites,
	})
}

// HandleListUsers returns every local user record. Mounted behind the admin
// role guard.
//
// GET /api/admin/users
func (h *UserHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
