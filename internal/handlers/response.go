package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"account-access-service/internal/middleware"
	"account-access-service/internal/services"
)

// ErrorResponse sends a standardized error response.
// Internal errors are logged but not exposed to clients.
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	requestID := c.GetString(middleware.RequestIDKey)

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"status":     statusCode,
		}).WithError(err).Error(message)
	}

	response := gin.H{
		"success":    false,
		"message":    message,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if gin.Mode() == gin.DebugMode && err != nil {
		response["error_details"] = err.Error()
	}

	c.JSON(statusCode, response)
}

// SuccessResponse sends a standardized success response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	response := gin.H{
		"success":    true,
		"message":    message,
		"request_id": c.GetString(middleware.RequestIDKey),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		response["data"] = data
	}
	c.JSON(statusCode, response)
}

// ServiceErrorResponse maps typed service errors onto HTTP statuses.
// Unknown errors surface as opaque 500s.
func ServiceErrorResponse(c *gin.Context, err error) {
	if accessErr, ok := services.AsAccessError(err); ok {
		status := http.StatusForbidden
		switch accessErr.Code {
		case services.AccessCodeUnresolvedTenant:
			status = http.StatusNotFound
		case services.AccessCodeNoOwnerGuard:
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"success":    false,
			"message":    accessErr.Message,
			"code":       accessErr.Code,
			"request_id": c.GetString(middleware.RequestIDKey),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	if verrs, ok := services.AsValidationErrors(err); ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success":    false,
			"message":    "Validation failed",
			"errors":     verrs,
			"request_id": c.GetString(middleware.RequestIDKey),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	if rlErr, ok := services.AsRateLimitError(err); ok {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success":      false,
			"message":      "Rate limit exceeded",
			"scope_detail": rlErr.ScopeDetail,
			"limit":        rlErr.Limit,
			"request_id":   c.GetString(middleware.RequestIDKey),
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	if tsErr, ok := services.AsTokenStatusError(err); ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success":    false,
			"message":    "Token is not usable",
			"status":     tsErr.Status,
			"request_id": c.GetString(middleware.RequestIDKey),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	ErrorResponse(c, http.StatusInternalServerError, "Internal server error", err)
}
