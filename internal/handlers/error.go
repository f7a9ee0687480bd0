package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/claimd/internal/proof"
	"github.com/memohai/claimd/internal/settlement"
	"github.com/memohai/claimd/internal/storage"
)

// ErrorResponse is the standard API error body.
type ErrorResponse struct {
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
}

var notFound = []error{
	settlement.ErrClaimNotFound,
	storage.ErrClaimNotFound,
	storage.ErrTokenNotFound,
}

// httpError maps a coordinator error to an HTTP error by category.
func httpError(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	category := settlement.CategoryOf(err)
	status := http.StatusInternalServerError
	switch category {
	case settlement.CategoryAuthorization:
		status = http.StatusForbidden
	case settlement.CategoryState:
		status = http.StatusConflict
		if errors.Is(err, settlement.ErrPaused) {
			status = http.StatusServiceUnavailable
		}
		for _, target := range notFound {
			if errors.Is(err, target) {
				status = http.StatusNotFound
			}
		}
	case settlement.CategoryResource:
		status = http.StatusBadRequest
	case settlement.CategoryExternal:
		status = http.StatusBadGateway
		if errors.Is(err, proof.ErrRejected) {
			status = http.StatusUnprocessableEntity
		}
	}
	return echo.NewHTTPError(status, ErrorResponse{Message: err.Error(), Category: category.String()})
}
