package identity

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/identity-store-pg/internal/identity/entity"
)

// Handler exposes read-only HTTP lookups over the identity store.
type Handler struct {
	mgr    *Manager[*entity.User]
	logger *zap.SugaredLogger
}

func NewHandler(mgr *Manager[*entity.User], logger *zap.SugaredLogger) *Handler {
	return &Handler{mgr: mgr, logger: logger}
}

// GetUser serves GET /users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	u, ok, err := h.mgr.FindByID(r.Context(), id)
	if err != nil {
		h.fail(w, "get user failed", err)
		return
	}
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// ListUsers serves GET /users?name= or ?email=.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var (
		users []*entity.User
		err   error
	)
	switch name, email := r.URL.Query().Get("name"), r.URL.Query().Get("email"); {
	case name != "":
		users, err = h.mgr.Store().Users.GetByUserName(r.Context(), name)
	case email != "":
		users, err = h.mgr.Store().Users.GetByEmail(r.Context(), email)
	default:
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name or email required"})
		return
	}
	if err != nil {
		h.fail(w, "list users failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

// UserRoles serves GET /users/{id}/roles.
func (h *Handler) UserRoles(w http.ResponseWriter, r *http.Request) {
	names, err := h.mgr.RoleNames(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "list roles failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, names)
}

// UserClaims serves GET /users/{id}/claims.
func (h *Handler) UserClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.mgr.Claims(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "list claims failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, claims.All())
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Login serves POST /login. On success it returns the user together with
// its claims in token form.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	user, err := h.mgr.Authenticate(r.Context(), req.Identifier, req.Password)
	switch {
	case errors.Is(err, ErrBadCredentials):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	case errors.Is(err, ErrLocked):
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "account locked"})
		return
	case err != nil:
		h.fail(w, "login failed", err)
		return
	}
	claims, err := h.mgr.Claims(r.Context(), user.ID)
	if err != nil {
		h.fail(w, "login failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"user":   user,
		"claims": claims.MapClaims(user.ID),
	})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warnw(msg, "err", err)
	h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
