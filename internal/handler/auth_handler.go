package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medsim/clerksim-backend/internal/middleware"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/medsim/clerksim-backend/internal/response"
	"github.com/medsim/clerksim-backend/internal/service"
	"github.com/medsim/clerksim-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	secure      bool
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		secure:      cookieSecure,
	}
}

// Login godoc
// POST /api/v1/auth/login
// Validates email + password and returns the outer JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, token, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the profile of the currently authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// Logout godoc
// POST /api/v1/auth/logout
// Clears the case context cookie. The outer JWT is stateless; the client
// discards it.
func (h *AuthHandler) Logout(c *gin.Context) {
	clearContextCookie(c, h.secure)
	response.Success(c, http.StatusOK, gin.H{})
}

// setContextCookie installs the signed context token as an HTTP-only cookie.
func setContextCookie(c *gin.Context, token string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.ContextCookieName, token, maxAge, "/", "", secure, true)
}

// clearContextCookie expires the context cookie immediately.
func clearContextCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.ContextCookieName, "", -1, "/", "", secure, true)
}
