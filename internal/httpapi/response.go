package httpapi

import (
	"encoding/json"
	"net/http"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func success(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, RequestID: requestID(r.Context())})
}

func accepted(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Success: true, Data: data, RequestID: requestID(r.Context())})
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, envelope{
		Success:   false,
		Error:     &apiError{Code: code, Message: message},
		RequestID: requestID(r.Context()),
	})
}
