package admin

import (
	"encoding/json"
	"net/http"
)

// All admin responses use one envelope: {"success":true,"data":...} on
// success and {"success":false,"error":"..."} on failure.

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeSuccess writes a success envelope with the given payload.
func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // headers already written, nothing left to report
	_ = json.NewEncoder(w).Encode(successResponse{Success: true, Data: data})
}

// writeError writes an error envelope with the given status and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // headers already written, nothing left to report
	_ = json.NewEncoder(w).Encode(errorResponse{Success: false, Error: message})
}
