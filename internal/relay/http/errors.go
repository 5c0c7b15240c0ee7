package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/saathi/internal/relay/service"
	"github.com/aussiebroadwan/saathi/pkg/httpx"
	"github.com/aussiebroadwan/saathi/pkg/relaysdk"
	"github.com/aussiebroadwan/saathi/pkg/slogx"
)

// writeServiceError maps a service error onto a REST response. Anything
// unrecognized is logged and reported as a server error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, service.ErrInvalidRegistration),
		errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, service.ErrInvitationRequired),
		errors.Is(err, service.ErrInvalidInvitation),
		errors.Is(err, service.ErrInvalidHierarchy):
		httpx.WriteError(w, http.StatusBadRequest, relaysdk.ErrorCodeInvalidRequest, err.Error())
	case errors.Is(err, service.ErrAlreadyRegistered):
		httpx.WriteError(w, http.StatusConflict, relaysdk.ErrorCodeConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, relaysdk.ErrorCodeInvalidCredentials, "invalid username or password")
	case errors.Is(err, service.ErrAccountDisabled),
		errors.Is(err, service.ErrAuthorizationDenied):
		httpx.WriteError(w, http.StatusForbidden, relaysdk.ErrorCodeForbidden, err.Error())
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrMessageNotFound):
		httpx.WriteError(w, http.StatusNotFound, relaysdk.ErrorCodeNotFound, err.Error())
	default:
		slogx.FromContext(r.Context()).Error("failed to "+action, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, relaysdk.ErrorCodeServerError, "failed to "+action)
	}
}
