package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/distill/models"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req models.RunRequest) (*models.RunReport, error)
}

// Run returns a handler for POST /api/v1/runs.
//
// The run executes synchronously within the request; the response carries
// the run report with artifact locations and the extracted data.
func Run(runner Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.RunResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		report, err := runner.Run(c.Request.Context(), req)
		if err != nil {
			pe := models.AsPipelineError(err)
			c.JSON(mapErrorToStatus(pe.Code), models.RunResponse{
				Success: false,
				Error:   pe.ToDetail(),
			})
			return
		}

		c.JSON(http.StatusOK, models.RunResponse{
			Success: true,
			Report:  report,
		})
	}
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case models.ErrCodeRateLimited, models.ErrCodeLLMRateLimited:
		return http.StatusTooManyRequests
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case models.ErrCodeBusy:
		return http.StatusServiceUnavailable
	case models.ErrCodeFetch, models.ErrCodeNoContent,
		models.ErrCodeLLMFailure, models.ErrCodeLLMAuthFailure, models.ErrCodeLLMInvalidOutput:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
