// Package httpkit provides HTTP response utilities.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"errors"
	"net/http"

	"marketplace_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// Error sends an error response with the given status code and message.
func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ErrorResponse{Status: "error", Message: message, Details: details})
}

// OK sends a 200 response wrapping data in the success envelope.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse{Status: "success", Data: data})
}

// Created sends a 201 response wrapping data in the success envelope.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse{Status: "success", Data: data})
}

// Accepted sends a 202 response with a message.
func Accepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, SuccessResponse{Status: "success", Message: message, Data: data})
}

// HandleError maps domain errors to HTTP responses.
// If the error chain holds a typed *apperr.Error, its Kind picks the status code;
// an oversized body maps to 413; anything else becomes a 500 with a generic message.
// Returns true if an error was handled, false otherwise.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	if domainErr, ok := apperr.As(err); ok {
		Error(c, domainErr.HTTPStatus(), domainErr.Message, domainErr.Details)
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(c, http.StatusRequestEntityTooLarge, "request body too large", nil)
		return true
	}

	_ = c.Error(err)
	Error(c, http.StatusInternalServerError, "internal server error", nil)
	return true
}
