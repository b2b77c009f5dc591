package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Alp4ka/relaypager"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Title string `json:"title,omitempty"`
}

// ErrorHandler maps paging errors caused by the client to 400 and anything
// unexpected to 500.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		if relaypager.IsInvalidArgument(err) {
			_ = c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Title: "invalid paging arguments"})
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{Error: fmt.Sprintf("%v", he.Message)})
			return
		}

		logger.Error("unhandled error", zap.Error(err), zap.String("uri", c.Request().RequestURI))
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
