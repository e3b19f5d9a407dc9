package response

import (
	"encoding/json"
	"net/http"
)

// Envelope statuses. "fail" marks a client error, "error" a server or
// upstream error.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// Response represents a standard API response
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// List is the data of a collection response
type List struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
}

// Success creates a new success response
func Success(message string, data interface{}) Response {
	return Response{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	}
}

// SuccessList wraps a collection together with its length
func SuccessList(message string, items interface{}, count int) Response {
	return Success(message, List{Items: items, Count: count})
}

// Error creates a new error response. Codes below 500 are reported as
// "fail", everything else as "error".
func Error(code int, message string) Response {
	status := StatusError
	if code < http.StatusInternalServerError {
		status = StatusFail
	}
	return Response{
		Status:  status,
		Message: message,
	}
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
