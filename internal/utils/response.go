package utils

import "time"

// APIResponse is the envelope every endpoint answers with. RequestID
// carries the chi request id so a failure reported by a guest can be
// matched against the log file.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SuccessResponse wraps a payload for a 2xx answer.
func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// ErrorResponse wraps a failure message and its detail. The detail is
// the raw error string; handlers pick the guest-facing message.
func ErrorResponse(message, detail string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     detail,
		Timestamp: time.Now(),
	}
}
