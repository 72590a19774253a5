package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"p2p-credit-backend/internal/pkg/apperror"
)

// decode binds and validates req. When ok is false the error response has
// already been written and the returned error is what the handler returns.
func decode(c echo.Context, req any) (ok bool, err error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	return true, nil
}

// fail maps a domain error to its HTTP status. Internal failures are logged
// by the caller's middleware and never leak their message.
func fail(c echo.Context, err error) error {
	status := apperror.HTTPStatus(err)
	resp := ErrorResponse{Error: err.Error(), Code: string(apperror.KindOf(err))}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		resp.Code = appErr.Code
		resp.Error = appErr.Message
	}
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		resp = ErrorResponse{Error: "internal error", Code: string(apperror.KindInternal)}
	}
	return c.JSON(status, resp)
}
