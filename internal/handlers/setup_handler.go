package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"account-access-service/internal/middleware"
	"account-access-service/internal/models"
	"account-access-service/internal/services"
)

// SetupHandler serves setup completion for pending accounts
type SetupHandler struct {
	access *services.AccessService
	setup  *services.SetupService
}

func NewSetupHandler(access *services.AccessService, setup *services.SetupService) *SetupHandler {
	return &SetupHandler{access: access, setup: setup}
}

// Complete validates the setup fields and activates the account
// POST /api/v1/accounts/:account/setup
func (h *SetupHandler) Complete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	accessCtx, err := h.access.GetAccessContext(c.Request.Context(), userID, middleware.GetTenantKey(c))
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	if err := h.access.RequireRole(accessCtx, models.RoleAdmin); err != nil {
		ServiceErrorResponse(c, err)
		return
	}

	var req services.SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.setup.CompleteSetup(c.Request.Context(), accessCtx.Account.ID, req)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Setup completed", result)
}
