package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every rejected request
type ErrorResponse struct {
	Status  int                    `json:"status"`
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Path    string                 `json:"path"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with data as the body
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes an ErrorResponse whose error field is the status reason phrase
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string, details map[string]interface{}) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return WriteJSON(w, status, ErrorResponse{
		Status:  status,
		Error:   http.StatusText(status),
		Message: message,
		Path:    r.URL.Path,
		Details: details,
	})
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) error {
	if message == "" {
		message = "Resource not found"
	}
	return WriteError(w, r, http.StatusNotFound, message, nil)
}
