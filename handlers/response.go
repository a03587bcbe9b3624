package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"challengeEngineAPI/internal/apperr"
	"challengeEngineAPI/internal/timewindow"
)

const (
	requestTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error", "code": "internal"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, errCode, message string) {
	respondWithJSON(w, code, errorResponse{Error: message, Code: errCode})
}

// respondWithAppError maps err onto its taxonomy status. Validation messages are passed
// through; everything else uses the taxonomy's generic message.
func respondWithAppError(w http.ResponseWriter, log *zap.Logger, err error) {
	e := apperr.As(err)

	switch {
	case apperr.Informational(err):
		log.Info("request rejected", zap.String("code", e.Code), zap.Error(err))
	case e.Status >= http.StatusInternalServerError:
		log.Error("request failed", zap.String("code", e.Code), zap.Error(err))
	default:
		log.Debug("request rejected", zap.String("code", e.Code), zap.Error(err))
	}

	msg := e.Msg
	if errors.Is(err, apperr.ErrInvalidSpec) {
		msg = err.Error()
	}
	respondWithError(w, e.Status, e.Code, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSON leaves dst untouched when the body is empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil
		}
		return apperr.Invalid("request body is empty")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return apperr.Invalid("request body is empty")
		}
		return apperr.Invalid("invalid request body: %v", err)
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, apperr.Invalid("invalid %s", name)
	}
	return id, nil
}

// queryDate returns nil when the parameter is absent.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := timewindow.ParseDate(raw)
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	return &d, nil
}
