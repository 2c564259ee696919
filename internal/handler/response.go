package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/mythsumon/job-sub002/internal/lifecycle"
	"github.com/mythsumon/job-sub002/internal/reqctx"
	"github.com/mythsumon/job-sub002/internal/repository"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// Error codes shared with chatclient.
const (
	CodeBadRequest        = "bad_request"
	CodeValidation        = "validation_error"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeConflict          = "conflict"
	CodeUnavailable       = "unavailable"
	CodeInternal          = "internal_error"
)

// writeError maps service errors onto the JSON error envelope.
func writeError(c echo.Context, err error, what string) error {
	switch {
	case errors.Is(err, lifecycle.ErrValidation):
		return c.JSON(http.StatusBadRequest, NewErrorResponse(CodeValidation, lifecycle.Reason(err)))
	case errors.Is(err, lifecycle.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, NewErrorResponse(CodeForbidden, lifecycle.ReasonNotParticipant))
	case errors.Is(err, lifecycle.ErrNotFound):
		return c.JSON(http.StatusNotFound, NewErrorResponse(CodeNotFound, "conversation not found"))
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, NewErrorResponse(CodeInvalidTransition, lifecycle.Reason(err)))
	case errors.Is(err, lifecycle.ErrConflict):
		return c.JSON(http.StatusConflict, NewErrorResponse(CodeConflict, "conversation changed, reload and try again"))
	case errors.Is(err, repository.ErrDBNotReady):
		return c.JSON(http.StatusServiceUnavailable, NewErrorResponse(CodeUnavailable, "database not ready"))
	}
	reqctx.Logger(c.Request().Context()).Error().Err(err).Msg(what)
	return c.JSON(http.StatusInternalServerError, NewErrorResponse(CodeInternal, "failed to "+what))
}

// RequestValidator plugs validator/v10 into echo's c.Validate.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: validator.New()}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// bindAndValidate reports whether req is usable. When it is not, the error
// response has already been written and its result is returned.
func bindAndValidate(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, NewErrorResponse(CodeBadRequest, "invalid json"))
	}
	if err := c.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		msg := err.Error()
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg = verrs[0].Field() + " is invalid (" + verrs[0].Tag() + ")"
		}
		return false, c.JSON(http.StatusBadRequest, NewErrorResponse(CodeValidation, msg))
	}
	return true, nil
}
