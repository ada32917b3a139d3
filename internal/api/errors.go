package api

import (
	"errors"
	"net/http"

	"erpsync/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var connection *domain.ConnectionError
	var introspection *domain.SchemaIntrospectionError
	var unsupported *domain.UnsupportedTypeError
	var forbidden *domain.ForbiddenOperationError
	var validation *domain.ValidationError
	var busy *domain.BusyError

	switch {
	case errors.As(err, &connection), errors.As(err, &introspection):
		return http.StatusBadGateway
	case errors.As(err, &unsupported):
		return http.StatusUnprocessableEntity
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &busy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
