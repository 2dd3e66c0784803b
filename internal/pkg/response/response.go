// Package response implements the REST layer's success and error envelopes.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pagination describes the page of results returned alongside a list body.
type Pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// ListBody is the success shape for paginated list endpoints: {data, pagination}.
type ListBody struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// ErrorDetail is the inner object of the error envelope.
type ErrorDetail struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Details    interface{} `json:"details,omitempty"`
}

// ErrorBody is the error envelope: {error:{code, message, statusCode, details?}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// OK sends a 200 response whose body is the resource itself.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 response whose body is the created resource.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends a 204 with no body, for soft-deletes.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// List sends a paginated list response: {data, pagination}.
func List(c *gin.Context, items interface{}, limit, offset int, total int64) {
	c.JSON(http.StatusOK, ListBody{
		Data:       items,
		Pagination: Pagination{Limit: limit, Offset: offset, Total: total},
	})
}

// Error sends the error envelope at the given HTTP status.
func Error(c *gin.Context, httpStatus int, code, message string) {
	c.JSON(httpStatus, ErrorBody{Error: ErrorDetail{
		Code:       code,
		Message:    message,
		StatusCode: httpStatus,
	}})
}

// ErrorWithDetails is Error plus a details payload (e.g. field validation errors).
func ErrorWithDetails(c *gin.Context, httpStatus int, code, message string, details interface{}) {
	c.JSON(httpStatus, ErrorBody{Error: ErrorDetail{
		Code:       code,
		Message:    message,
		StatusCode: httpStatus,
		Details:    details,
	}})
}

// BadRequest sends a 400 VALIDATION_ERROR.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "VALIDATION_ERROR", message)
}

// Unauthorized sends a 401 UNAUTHORIZED.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden sends a 403 FORBIDDEN.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, "FORBIDDEN", message)
}

// NotFound sends a 404 error with the given domain-specific code
// (e.g. "GATEWAY_NOT_FOUND", "FACTORY_NOT_FOUND").
func NotFound(c *gin.Context, code, message string) {
	Error(c, http.StatusNotFound, code, message)
}

// Conflict sends a 409 CONFLICT.
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, "CONFLICT", message)
}

// InternalError sends a 500 INTERNAL_ERROR.
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// ServiceUnavailable sends a 503 SERVICE_UNAVAILABLE, used when a gateway
// worker cannot be reached.
func ServiceUnavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message)
}
