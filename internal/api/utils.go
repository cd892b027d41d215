package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"lipsync-backend/pkg/api"

	"github.com/gorilla/schema"
)

type codedError struct {
	err      error
	code     int
	category string
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(code int, err error) error {
	return &codedError{err: err, code: code, category: categoryForStatus(code)}
}

func CodedErrorf(code int, format string, args ...any) error {
	return CodedError(code, fmt.Errorf(format, args...))
}

func CategorizedErrorf(code int, category string, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code, category: category}
}

func categoryForStatus(code int) string {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return api.CategoryInvalidRequest
	case http.StatusRequestEntityTooLarge:
		return api.CategoryPayloadTooLarge
	case http.StatusNotFound:
		return api.CategoryNotFound
	case http.StatusServiceUnavailable:
		return api.CategoryBusy
	case http.StatusGatewayTimeout:
		return api.CategoryTimeout
	default:
		return api.CategoryInternal
	}
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func ParseRequestQueryParams[T any](r *http.Request) (T, error) {
	var data T
	if err := queryDecoder.Decode(&data, r.URL.Query()); err != nil {
		slog.Error("error decoding query params", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params: %v", err)
	}

	return data, nil
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			WriteErrorResponse(w, err)
			return
		}

		if res == nil {
			res = struct{}{}
		}

		WriteJsonResponse(w, res)
	}
}

// FileHandler serves the file at the path returned by handler as a download.
func FileHandler(handler func(r *http.Request) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := handler(r)
		if err != nil {
			WriteErrorResponse(w, err)
			return
		}

		if err := ServeArtifact(w, r, path); err != nil {
			WriteErrorResponse(w, err)
		}
	}
}

func WriteErrorResponse(w http.ResponseWriter, err error) {
	code, category := http.StatusInternalServerError, api.CategoryInternal

	var cerr *codedError
	if errors.As(err, &cerr) {
		code, category = cerr.code, cerr.category
		if code >= http.StatusInternalServerError {
			slog.Error("server error received in endpoint", "code", code, "category", category, "error", err)
		}
	} else {
		slog.Error("recieved non coded error from endpoint", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(api.ErrorResponse{Category: category, Message: err.Error()}); err != nil {
		slog.Error("error writing error response", "error", err)
	}
}

func WriteJsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
	}
}
