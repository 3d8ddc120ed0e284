package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/apperr"
	"github.com/erazemk/pujcovna/internal/scan"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

const codeThrottled = "throttled"

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// jsonError writes a JSON error response with an explicit status and code.
func jsonError(w http.ResponseWriter, status int, code, message string) {
	jsonResponse(w, status, errorBody{Error: message, Code: code})
}

// errorStatus maps a service error to its HTTP status and wire code.
func errorStatus(err error) (int, string) {
	if errors.Is(err, scan.ErrThrottled) {
		return http.StatusTooManyRequests, codeThrottled
	}
	kind := apperr.KindOf(err)
	return kind.HTTPStatus(), kind.String()
}

// writeError writes a service error. Unclassified errors are logged and
// reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		if apperr.KindOf(err) == apperr.KindUnknown {
			jsonError(w, status, code, "internal error")
			return
		}
	}
	jsonError(w, status, code, err.Error())
}

// badRequest writes a validation error for malformed input.
func badRequest(w http.ResponseWriter, message string) {
	jsonError(w, http.StatusBadRequest, apperr.KindValidation.String(), message)
}

// recordError describes one failed record of a batch response.
func recordError(err error) *errorBody {
	if err == nil {
		return nil
	}
	_, code := errorStatus(err)
	return &errorBody{Error: err.Error(), Code: code}
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// readUpload returns the bytes of an uploaded file. A multipart body is read
// from the named form field; any other body is taken as the file itself.
func readUpload(w http.ResponseWriter, r *http.Request, field string, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile(field)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(r.Body)
}
