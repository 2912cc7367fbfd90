package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"account-access-service/internal/services"
)

// OnboardingHandler serves the token redemption flow
type OnboardingHandler struct {
	onboarding *services.OnboardingService
}

func NewOnboardingHandler(onboarding *services.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{onboarding: onboarding}
}

// Redeem runs the onboarding saga for a post-sale token. Business failures
// come back as 200 with outcome=continue and a reason; only infrastructure
// failures produce a 5xx.
// POST /api/v1/onboarding/redeem
func (h *OnboardingHandler) Redeem(c *gin.Context) {
	var req struct {
		TokenID  string `json:"token_id" binding:"required"`
		Secret   string `json:"secret" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	tokenID, err := uuid.Parse(req.TokenID)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid token ID", err)
		return
	}

	result, err := h.onboarding.RedeemToken(c.Request.Context(), services.RedeemRequest{
		TokenID:  tokenID,
		Secret:   req.Secret,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Redemption processed", result)
}
