package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danya/gymcrm/internal/shared"
	"github.com/danya/gymcrm/middleware"
	"github.com/danya/gymcrm/models"
	"github.com/danya/gymcrm/utils"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ChangePasswordRequest is the body of PUT /users/me/password
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72,nefield=OldPassword"`
}

// SetPasswordRequest is the body of PUT /users/{username}/password
type SetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

// ChangeStatusRequest is the body of the status endpoints
type ChangeStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

// UserResponse represents an account in API responses
type UserResponse struct {
	Username  string            `json:"username"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Roles     []models.RoleName `json:"roles"`
	Status    models.UserStatus `json:"status"`
	UpdatedAt string            `json:"updatedAt"`
}

// UserService defines the account operations used by UserHandler
type UserService interface {
	GetProfile(ctx context.Context, username string) (*models.User, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
	SetPassword(ctx context.Context, username, newPassword string) error
	ChangeStatus(ctx context.Context, username string, status models.UserStatus) (*models.User, error)
}

// UserHandler handles account endpoints. Role checks happen in the router;
// handlers only resolve whose account is addressed.
type UserHandler struct {
	users     UserService
	responder *middleware.ErrorResponder
	logger    *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserService, responder *middleware.ErrorResponder, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:     users,
		responder: responder,
		logger:    logger,
	}
}

// HandleGetMe handles GET /users/me
func (h *UserHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.responder.Respond(w, r, shared.ErrUnauthenticated)
		return
	}

	user, err := h.users.GetProfile(r.Context(), principal.Username)
	if err != nil {
		h.responder.Respond(w, r, err)
		return
	}

	h.writeUser(w, r, user)
}

// HandleChangeMyPassword handles PUT /users/me/password
func (h *UserHandler) HandleChangeMyPassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.responder.Respond(w, r, shared.ErrUnauthenticated)
		return
	}

	var req ChangePasswordRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.responder.Respond(w, r, err)
		return
	}

	if err := h.users.ChangePassword(r.Context(), principal.Username, req.OldPassword, req.NewPassword); err != nil {
		h.responder.Respond(w, r, err)
		return
	}

	utils.WriteNoContent(w)
}

// HandleSetPassword handles PUT /users/{username}/password
func (h *UserHandler) HandleSetPassword(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req SetPasswordRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.responder.Respond(w, r, err)
		return
	}

	if err := h.users.SetPassword(r.Context(), username, req.NewPassword); err != nil {
		h.responder.Respond(w, r, err)
		return
	}

	utils.WriteNoContent(w)
}

// HandleChangeMyStatus handles PUT /users/me/status
func (h *UserHandler) HandleChangeMyStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.responder.Respond(w, r, shared.ErrUnauthenticated)
		return
	}
	h.changeStatus(w, r, principal.Username)
}

// HandleChangeStatus handles PUT /users/{username}/status
func (h *UserHandler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, chi.URLParam(r, "username"))
}

func (h *UserHandler) changeStatus(w http.ResponseWriter, r *http.Request, username string) {
	var req ChangeStatusRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.responder.Respond(w, r, err)
		return
	}

	user, err := h.users.ChangeStatus(r.Context(), username, req.Status)
	if err != nil {
		h.responder.Respond(w, r, err)
		return
	}

	h.writeUser(w, r, user)
}

func (h *UserHandler) writeUser(w http.ResponseWriter, r *http.Request, user *models.User) {
	if err := utils.WriteOK(w, userToResponse(user)); err != nil {
		h.logger.Error("failed to write user response",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err))
	}
}

func userToResponse(u *models.User) UserResponse {
	status := models.UserStatusInactive
	if u.IsActive {
		status = models.UserStatusActive
	}
	roles := u.Roles
	if roles == nil {
		roles = []models.RoleName{}
	}
	return UserResponse{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     roles,
		Status:    status,
		UpdatedAt: u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
