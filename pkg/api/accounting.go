package api

import (
	"errors"
	"net/http"

	"github.com/cuemby/warren/pkg/storage"
)

// handleAccounting returns the caller's own accounting snapshot.
func (s *Server) handleAccounting(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	acc, err := s.accStore.GetAccounting(user)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			notFound(w, "no accounting record yet for this user")
			return
		}
		internalError(w, "failed to load accounting record")
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"accounting": acc})
}

// handleAppStats returns the cross-tenant aggregate accounting record.
func (s *Server) handleAppStats(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accStore.GetAccounting("")
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			notFound(w, "no global accounting record yet")
			return
		}
		internalError(w, "failed to load global accounting record")
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"appstats": acc})
}
