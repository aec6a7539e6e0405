package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/middleware"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/pkg/id"
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// errorResponse creates a standardized JSON error response.
func errorResponse(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:   errorName(statusCode),
		Message: message,
	})
}

func errorName(statusCode int) string {
	switch statusCode {
	case fiber.StatusBadRequest:
		return "Bad Request"
	case fiber.StatusNotFound:
		return "Not Found"
	case fiber.StatusConflict:
		return "Conflict"
	case fiber.StatusUnprocessableEntity:
		return "Unprocessable Entity"
	case fiber.StatusInternalServerError:
		return "Internal Server Error"
	}
	return "Error"
}

// serviceError maps a service error to its response. Application errors
// keep their code and message; anything else is logged and hidden.
func serviceError(c *fiber.Ctx, fallback *zap.Logger, err error, action string) error {
	app := apperrors.GetAppError(err)
	status := apperrors.GetStatusCode(err)
	if app == nil || status >= fiber.StatusInternalServerError {
		middleware.GetLogger(c, fallback).Error("failed to "+action, zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to "+action)
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:   errorName(status),
		Code:    app.Code,
		Message: app.Message,
		Details: app.Details,
	})
}

// parseQueryInt parses an integer query parameter with a default value.
func parseQueryInt(c *fiber.Ctx, key string, defaultValue int) int {
	val := c.Query(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// parseRunID parses the :runId route parameter, writing a 400 when invalid.
func parseRunID(c *fiber.Ctx) (uuid.UUID, bool, error) {
	runID, err := id.ParseUUID(c.Params("runId"))
	if err != nil {
		return uuid.Nil, false, errorResponse(c, fiber.StatusBadRequest, "Invalid run ID")
	}
	return runID, true, nil
}

// Metrics serves the Prometheus registry
func Metrics() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
