package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/windlink/internal/models"
	"github.com/nextlevelbuilder/windlink/internal/oai"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth reports liveness plus whether the language server is
// reachable right now. The credential cache keeps repeated probes cheap.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	_, err := s.resolver.Credentials(ctx)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"windsurf": err == nil,
	})
}

// handleModels serves the catalog in OpenAI list shape, with the bridge's
// variant extension.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.handleNotFound(w, r)
		return
	}

	created := time.Now().Unix()
	list := oai.ModelList{Object: "list"}
	for _, info := range models.List() {
		list.Data = append(list.Data, oai.Model{
			ID:       info.ID,
			Object:   "model",
			Created:  created,
			OwnedBy:  "windsurf",
			Variants: info.Variants,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "unknown route: "+r.URL.Path)
}
