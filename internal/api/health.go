package api

import (
	"net/http"

	"github.com/good-yellow-bee/flare/pkg/config"
)

// health reports liveness and the running version.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]any{
		"status":  "ok",
		"version": config.Version,
	})
}
