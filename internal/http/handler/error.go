package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"medindex/internal/fault"
	"medindex/internal/http/middleware"
)

// errorPayload is the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts the request_id stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking
// internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	})
}

// faultStatus maps a fault kind to an HTTP status and machine-readable code.
func faultStatus(kind fault.Kind) (int, string) {
	switch kind {
	case fault.InvalidInput:
		return fiber.StatusBadRequest, "INVALID_INPUT"
	case fault.MaliciousFilename:
		return fiber.StatusBadRequest, "MALICIOUS_FILENAME"
	case fault.ExecutableContent:
		return fiber.StatusBadRequest, "EXECUTABLE_CONTENT_DETECTED"
	case fault.FileTooLarge:
		return fiber.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"
	case fault.UnsupportedType:
		return fiber.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE"
	case fault.MimeMismatch:
		return fiber.StatusUnsupportedMediaType, "MIME_MISMATCH"
	case fault.RateLimited:
		return fiber.StatusTooManyRequests, "RATE_LIMITED"
	case fault.LowQualityOCR:
		return fiber.StatusUnprocessableEntity, "LOW_QUALITY_OCR"
	case fault.LowQualityNER:
		return fiber.StatusUnprocessableEntity, "LOW_QUALITY_NER"
	case fault.ExtractionTimeout:
		return fiber.StatusGatewayTimeout, "EXTRACTION_TIMEOUT"
	case fault.CollaboratorUnavailable:
		return fiber.StatusServiceUnavailable, "COLLABORATOR_UNAVAILABLE"
	case fault.NotFound:
		return fiber.StatusNotFound, "NOT_FOUND"
	default:
		return fiber.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeFault translates a pipeline error into the error response. Faults
// carry safe, self-descriptive details; anything else is reported as an
// opaque internal error.
func writeFault(c *fiber.Ctx, err error) error {
	var f *fault.Fault
	if errors.As(err, &f) {
		status, code := faultStatus(f.Kind)
		if f.Kind == fault.RateLimited && f.RetryAfter > 0 {
			c.Set("Retry-After", strconv.Itoa(int(f.RetryAfter.Seconds())+1))
		}
		return writeError(c, status, code, f.Detail)
	}
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// ErrorHandler returns a Fiber global error handler that standardizes error
// responses for errors escaping the handlers.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "FILE_TOO_LARGE", "request body too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
