package server

import (
	"encoding/json"
	"net/http"
	"strings"
)

// apiResponse is the wire shape of every collector endpoint reply.
type apiResponse struct {
	Text string `json:"text"`
	Code int    `json:"code"`
}

type apiError struct {
	Code int
	Text string
}

func (e *apiError) Error() string {
	return e.Text
}

var (
	errInvalidEvent = &apiError{Code: 6, Text: "Invalid data format"}
	errNoData       = &apiError{Code: 5, Text: "No data"}
	errUnauthorized = &apiError{Code: 4, Text: "Invalid authorization"}
	errServerBusy   = &apiError{Code: 9, Text: "Server is busy"}
	errRateLimited  = &apiError{Code: 10, Text: "Rate limit exceeded"}
)

func sendSuccess(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Text: "Success", Code: 0})
}

func sendError(w http.ResponseWriter, apiErr *apiError, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(apiResponse{Text: apiErr.Text, Code: apiErr.Code})
}

// extractToken pulls the producer token out of an Authorization header.
// Only the Bearer scheme is accepted.
func extractToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}

	if strings.ToLower(parts[0]) == "bearer" {
		return parts[1]
	}
	return ""
}
