package handler

import (
	"encoding/json"
	"net/http"
)

// NewRootHandler returns the service banner served at GET /.
func NewRootHandler(service, version string) http.HandlerFunc {
	body, _ := json.Marshal(map[string]string{
		"service": service,
		"status":  "running",
		"version": version,
	})
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}
