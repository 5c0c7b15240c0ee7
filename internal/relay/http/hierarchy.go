package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/service"
	"github.com/aussiebroadwan/saathi/pkg/httpx"
	"github.com/aussiebroadwan/saathi/pkg/relaysdk"
)

type HierarchyHandler struct {
	Hierarchy *service.HierarchyService
}

// Users godoc
//
//	@Summary		Hierarchy users
//	@Description	The part of the hierarchy the caller manages. Admins see everyone, partners see their subtree, everyone else sees themselves.
//	@Tags			Hierarchy
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	relaysdk.UsersResponse
//	@Failure		401	{object}	relaysdk.ErrorResponse	"invalid token"
//	@Router			/v1/hierarchy/users [get].
func (h *HierarchyHandler) Users(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.Hierarchy.UsersInHierarchy(ctx, httpx.UserIDFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err, "list hierarchy")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUsers(users, toProfile))
}

// Referrals godoc
//
//	@Summary		Direct referrals
//	@Description	Users who registered with the caller's invitation code, oldest first.
//	@Tags			Hierarchy
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	relaysdk.UsersResponse
//	@Failure		401	{object}	relaysdk.ErrorResponse	"invalid token"
//	@Router			/v1/hierarchy/referrals [get].
func (h *HierarchyHandler) Referrals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.Hierarchy.DirectReferrals(ctx, httpx.UserIDFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err, "list referrals")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUsers(users, toProfile))
}

// JoinService godoc
//
//	@Summary		Join service
//	@Description	Add the caller to a service. Idempotent.
//	@Tags			Services
//	@Security		BearerAuth
//	@Param			serviceId	path	string	true	"Service id"
//	@Success		204
//	@Failure		400	{object}	relaysdk.ErrorResponse	"invalid service id"
//	@Router			/v1/services/{serviceId}/members [post].
func (h *HierarchyHandler) JoinService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Hierarchy.JoinService(ctx, httpx.UserIDFromContext(ctx), r.PathValue("serviceId")); err != nil {
		writeServiceError(w, r, err, "join service")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LeaveService godoc
//
//	@Summary		Leave service
//	@Description	Remove the caller from a service. Idempotent.
//	@Tags			Services
//	@Security		BearerAuth
//	@Param			serviceId	path	string	true	"Service id"
//	@Success		204
//	@Failure		400	{object}	relaysdk.ErrorResponse	"invalid service id"
//	@Router			/v1/services/{serviceId}/members [delete].
func (h *HierarchyHandler) LeaveService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Hierarchy.LeaveService(ctx, httpx.UserIDFromContext(ctx), r.PathValue("serviceId")); err != nil {
		writeServiceError(w, r, err, "leave service")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidInvitation godoc
//
//	@Summary		Check invitation code
//	@Description	Whether a code may be used to register a user with the given role.
//	@Tags			Invitations
//	@Produce		json
//	@Param			code	path		string	true	"Invitation code"
//	@Param			role	query		string	true	"Requested role"
//	@Success		200		{object}	relaysdk.InvitationCheckResponse
//	@Failure		400		{object}	relaysdk.ErrorResponse	"unknown role"
//	@Router			/v1/invitations/{code}/valid [get].
func (h *HierarchyHandler) ValidInvitation(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.PathValue("code"))
	role, err := domain.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, relaysdk.ErrorCodeInvalidRequest, err.Error())
		return
	}

	ok, err := h.Hierarchy.IsValidInvitationCode(r.Context(), code, role)
	if err != nil {
		writeServiceError(w, r, err, "check invitation code")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, relaysdk.InvitationCheckResponse{Code: code, Role: role.String(), Valid: ok})
}
