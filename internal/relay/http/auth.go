package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/service"
	"github.com/aussiebroadwan/saathi/pkg/httpx"
	"github.com/aussiebroadwan/saathi/pkg/relaysdk"
)

type AuthHandler struct {
	Hierarchy *service.HierarchyService
	Tokens    *service.TokenService
}

func authResponse(tok service.AccessToken) relaysdk.AuthResponse {
	return relaysdk.AuthResponse{
		AccessToken: tok.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(tok.ExpiresAt).Seconds()),
		User:        toProfile(tok.User),
	}
}

// Register godoc
//
//	@Summary		Register
//	@Description	Create an account. The first account ever created becomes the super-admin; every later one needs an invitation code whose owner may issue the requested role.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		relaysdk.RegisterRequest	true	"Registration"
//	@Success		201		{object}	relaysdk.AuthResponse		"access token and profile"
//	@Failure		400		{object}	relaysdk.ErrorResponse		"error, error_description"
//	@Failure		409		{object}	relaysdk.ErrorResponse		"username or email taken"
//	@Failure		429		{object}	relaysdk.ErrorResponse		"rate limited"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req relaysdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, relaysdk.ErrorCodeInvalidRequest, "malformed request body")
		return
	}

	u, err := h.Hierarchy.Register(r.Context(), service.RegisterRequest{
		Username:       req.Username,
		Email:          req.Email,
		Password:       req.Password,
		Role:           domain.Role(req.Role),
		InvitationCode: req.InvitationCode,
		State:          req.State,
		District:       req.District,
	})
	if err != nil {
		writeServiceError(w, r, err, "register user")
		return
	}

	tok, err := h.Tokens.IssueToken(u)
	if err != nil {
		writeServiceError(w, r, err, "issue token")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authResponse(tok))
}

// Login godoc
//
//	@Summary		Login
//	@Description	Exchange a username and password for an EdDSA signed access token.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		relaysdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	relaysdk.AuthResponse	"access token and profile"
//	@Failure		400		{object}	relaysdk.ErrorResponse	"error, error_description"
//	@Failure		401		{object}	relaysdk.ErrorResponse	"invalid credentials"
//	@Failure		403		{object}	relaysdk.ErrorResponse	"account disabled"
//	@Failure		429		{object}	relaysdk.ErrorResponse	"rate limited"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req relaysdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, relaysdk.ErrorCodeInvalidRequest, "malformed request body")
		return
	}

	tok, err := h.Tokens.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err, "log in")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authResponse(tok))
}

// Profile godoc
//
//	@Summary		Profile
//	@Description	The caller's own user record, including its invitation code.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	relaysdk.User			"profile"
//	@Failure		401	{object}	relaysdk.ErrorResponse	"invalid token"
//	@Failure		404	{object}	relaysdk.ErrorResponse	"user no longer exists"
//	@Router			/v1/auth/profile [get].
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	u, err := h.Hierarchy.GetUser(r.Context(), httpx.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "load profile")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProfile(u))
}
