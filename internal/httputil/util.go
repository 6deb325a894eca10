package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-sod/surrogate/internal/logging"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AcceptJSONPost rejects anything but a POST carrying a JSON body. It reports whether the
// request may be decoded.
func AcceptJSONPost(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		RespError(ctx, w, http.StatusMethodNotAllowed, "method %v is not allowed", r.Method)
		return false
	}
	if t := r.Header.Get("content-type"); !strings.HasPrefix(t, "application/json") {
		RespError(ctx, w, http.StatusUnsupportedMediaType, "content-type is not application/json")
		return false
	}
	return true
}

func DecodeErr(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		syntaxErr      *json.SyntaxError
		unmarshalError *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &syntaxErr):
		RespBadRequest(ctx, w, "malformed json at position %v", syntaxErr.Offset)
	case errors.Is(err, io.ErrUnexpectedEOF):
		RespBadRequest(ctx, w, "malformed json")
	case errors.As(err, &unmarshalError):
		RespBadRequest(ctx, w, "invalid value for %v at position %v", unmarshalError.Field, unmarshalError.Offset)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		RespBadRequest(ctx, w, "unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	case errors.Is(err, io.EOF):
		RespBadRequest(ctx, w, "body must not be empty")
	case err.Error() == "http: request body too large":
		RespError(ctx, w, http.StatusRequestEntityTooLarge, "body is too large")
	default:
		RespInternalError(ctx, w, "failed to decode json: %v", err)
	}
}

func RespError(ctx context.Context, w http.ResponseWriter, status int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logging.FromContext(ctx).Debugw("request rejected", "status", status, "error", msg)
	RespJSON(ctx, w, status, ErrorResponse{Error: msg})
}

func RespBadRequest(ctx context.Context, w http.ResponseWriter, format string, args ...interface{}) {
	RespError(ctx, w, http.StatusBadRequest, format, args...)
}

// RespInternalError logs the cause and hides it from the client.
func RespInternalError(ctx context.Context, w http.ResponseWriter, format string, args ...interface{}) {
	logging.FromContext(ctx).Errorf(format, args...)
	RespJSON(ctx, w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func RespJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	bytes, err := json.Marshal(v)
	if err != nil {
		logging.FromContext(ctx).Errorf("failed to encode output json: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes)
}
