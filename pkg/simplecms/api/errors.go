package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps a service error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, simplecms.ErrValidation),
		errors.Is(err, query.ErrInvalidID),
		errors.Is(err, query.ErrInvalidPage):
		return http.StatusBadRequest
	case errors.Is(err, simplecms.ErrDocumentNotFound),
		errors.Is(err, simplecms.ErrContentLanguageNotFound),
		errors.Is(err, simplecms.ErrUnknownContentKind):
		return http.StatusNotFound
	case errors.Is(err, simplecms.ErrDuplicateSiteName),
		errors.Is(err, simplecms.ErrDuplicateStartPage),
		errors.Is(err, simplecms.ErrDuplicateHostName),
		errors.Is(err, simplecms.ErrMultiplePrimaryHost),
		errors.Is(err, simplecms.ErrHostNameAlreadyUsed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

func parseObjectID(field, value string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s: %v", simplecms.ErrValidation, field, err)
	}
	return id, nil
}
