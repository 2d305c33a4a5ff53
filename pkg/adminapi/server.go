// Package adminapi is a small read-only HTTP API over a running node's
// contact registry, exposing the one endpoint the CLI needs instead of a
// full request/route table.
package adminapi

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/go-dtn/upcn/pkg/manager"
)

// Server exposes a *manager.Manager's contact registry over HTTP.
type Server struct {
	mgr      *manager.Manager
	serveMux *http.ServeMux
}

// NewServer builds a Server backed by mgr.
func NewServer(mgr *manager.Manager) *Server {
	s := &Server{mgr: mgr, serveMux: http.NewServeMux()}
	s.serveMux.HandleFunc("/contacts", s.handleContacts)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.serveMux.ServeHTTP(w, r)
}

// ListenAndServe blocks serving the admin API on addr.
func (s *Server) ListenAndServe(addr string) error {
	log.WithField("addr", addr).Info("[ADMIN API] serving contact registry")
	return http.ListenAndServe(addr, s)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snapshots := s.mgr.Contacts()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshots); err != nil {
		log.WithError(err).Warn("[ADMIN API] failed to encode contacts response")
	}
}
