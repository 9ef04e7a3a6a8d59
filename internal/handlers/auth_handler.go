package handlers

import (
	"encoding/json"
	"net/http"

	"marketplace-api/internal/models"
	"marketplace-api/internal/services"

	"github.com/rs/zerolog"
)

type AuthHandler struct {
	userService  *services.UserService
	tokenService *services.TokenService
	logger       zerolog.Logger
}

func NewAuthHandler(userService *services.UserService, tokenService *services.TokenService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		userService:  userService,
		tokenService: tokenService,
		logger:       logger,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	user, err := h.userService.Register(&req)
	if err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	user, err := h.userService.Authenticate(&req)
	if err != nil {
		h.logger.Warn().Str("email", req.Email).Msg("Login failed")
		respondWithAppError(w, h.logger, err)
		return
	}

	token, err := h.tokenService.Issue(user.Email, user.Roles)
	if err != nil {
		h.logger.Error().Err(err).Msg("Token generation failed")
		respondWithError(w, http.StatusInternalServerError, "token_generation_failed", "Failed to generate token")
		return
	}

	respondWithJSON(w, http.StatusOK, models.JwtResponse{Jwt: token})
}

// HashPasswords is the maintenance sweep migrating legacy plaintext
// passwords to bcrypt.
func (h *AuthHandler) HashPasswords(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.RehashLegacyPasswords(); err != nil {
		respondWithAppError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Passwords hashed successfully"})
}
