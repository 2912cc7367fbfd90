package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"account-access-service/internal/services"
)

// TokenHandler serves the post-sale token lifecycle endpoints. Generation
// and revocation sit on internal routes; validation is public so the
// onboarding frontend can pre-check a link.
type TokenHandler struct {
	tokens *services.TokenService
}

func NewTokenHandler(tokens *services.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// Generate issues a post-sale token for a buyer email
// POST /internal/tokens
func (h *TokenHandler) Generate(c *gin.Context) {
	var req struct {
		ActorID     string `json:"actor_id" binding:"required"`
		ActorRole   string `json:"actor_role" binding:"required"`
		Email       string `json:"email" binding:"required,email"`
		AccountName string `json:"account_name"`
		ContractRef string `json:"contract_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid actor ID", err)
		return
	}

	generated, err := h.tokens.Generate(c.Request.Context(), actorID, req.ActorRole, req.Email, req.AccountName, req.ContractRef)
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	// The secret is returned exactly once and never persisted in clear.
	SuccessResponse(c, http.StatusCreated, "Token generated", generated)
}

// Validate pre-checks a token without consuming it
// GET /api/v1/onboarding/tokens/:tokenId?secret=...
func (h *TokenHandler) Validate(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("tokenId"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid token ID", err)
		return
	}

	token, err := h.tokens.Validate(tokenID, c.Query("secret"))
	if err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Token is valid", gin.H{
		"token_id":     token.ID,
		"email":        token.Email,
		"account_name": token.AccountName,
		"expires_at":   token.ExpiresAt,
	})
}

// Revoke expires a token immediately; repeated calls are no-ops
// POST /internal/tokens/:tokenId/revoke
func (h *TokenHandler) Revoke(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("tokenId"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid token ID", err)
		return
	}

	if err := h.tokens.Revoke(c.Request.Context(), tokenID); err != nil {
		ServiceErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Token revoked", nil)
}
