package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/auth"
)

// AuthHandler issues tokens for local development. In deployed environments
// tokens come from the identity service and this route is not registered.
type AuthHandler struct {
	jwtSecret string
	jwtExpiry time.Duration
	validator *Validator
}

func NewAuthHandler(jwtSecret string, jwtExpiry time.Duration, validator *Validator) *AuthHandler {
	return &AuthHandler{
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
		validator: validator,
	}
}

type devTokenRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Role   string `json:"role" validate:"omitempty,oneof=artist admin owner"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) DevToken(w http.ResponseWriter, r *http.Request) {
	var req devTokenRequest
	if !h.validator.Decode(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleArtist
	}

	userID := uuid.MustParse(req.UserID)
	token, err := auth.GenerateToken(userID, req.Role, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, tokenResponse{
		Token:     token,
		UserID:    userID,
		Role:      req.Role,
		ExpiresAt: time.Now().UTC().Add(h.jwtExpiry),
	})
}
