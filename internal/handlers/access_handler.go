package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"account-access-service/internal/middleware"
	"account-access-service/internal/models"
	"account-access-service/internal/services"
)

// AccessHandler serves access context and member management endpoints
type AccessHandler struct {
	access *services.AccessService
}

func NewAccessHandler(access *services.AccessService) *AccessHandler {
	return &AccessHandler{access: access}
}

// GetContext returns the caller's access context for the resolved account
// GET /api/v1/accounts/:account/context
func (h *AccessHandler) GetContext(c *gin.Context) {
	accessCtx, ok := h.resolveContext(c)
	if !ok {
		return
	}
	SuccessResponse(c, http.StatusOK, "Access granted", accessCtx)
}

// ListAccounts returns the caller's account summaries
// GET /api/v1/accounts
func (h *AccessHandler) ListAccounts(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}
	summaries, err := h.access.ListAccounts(c.Request.Context(), userID)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Accounts retrieved", summaries)
}

// ListMembers returns the account's memberships
// GET /api/v1/accounts/:account/members
func (h *AccessHandler) ListMembers(c *gin.Context) {
	accessCtx, ok := h.resolveContext(c)
	if !ok {
		return
	}
	members, err := h.access.ListMembers(accessCtx)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Members retrieved", members)
}

// ChangeRole updates a member's role
// PUT /api/v1/accounts/:account/members/:memberId/role
func (h *AccessHandler) ChangeRole(c *gin.Context) {
	accessCtx, ok := h.resolveContext(c)
	if !ok {
		return
	}
	membershipID, err := uuid.Parse(c.Param("memberId"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid membership ID", err)
		return
	}

	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.access.ChangeRole(c.Request.Context(), accessCtx, membershipID, req.Role); err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Role updated", gin.H{
		"membership_id": membershipID,
		"role":          models.NormalizeRole(req.Role),
	})
}

// DeactivateMember marks a membership inactive
// POST /api/v1/accounts/:account/members/:memberId/deactivate
func (h *AccessHandler) DeactivateMember(c *gin.Context) {
	accessCtx, ok := h.resolveContext(c)
	if !ok {
		return
	}
	membershipID, err := uuid.Parse(c.Param("memberId"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid membership ID", err)
		return
	}

	if err := h.access.DeactivateMember(c.Request.Context(), accessCtx, membershipID); err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Member deactivated", nil)
}

// ListActivity returns the account's recent audit entries
// GET /api/v1/accounts/:account/activity
func (h *AccessHandler) ListActivity(c *gin.Context) {
	accessCtx, ok := h.resolveContext(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	entries, err := h.access.ListActivity(accessCtx, limit)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Activity retrieved", entries)
}

// resolveContext builds the caller's access context from the authenticated
// user and the resolved tenant key, writing the error response itself when
// access is denied.
func (h *AccessHandler) resolveContext(c *gin.Context) (*services.AccessContext, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return nil, false
	}

	accessCtx, err := h.access.GetAccessContext(c.Request.Context(), userID, middleware.GetTenantKey(c))
	if err != nil {
		ServiceErrorResponse(c, err)
		return nil, false
	}
	return accessCtx, true
}
