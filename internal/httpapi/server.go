// Package httpapi is the host adapter surface: heartbeat ingestion for push
// sites and a read-only status snapshot. CRUD, auth and the dashboard live
// outside this service.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

type Server struct {
	Logger *zap.Logger
	Sites  repo.SiteStore
}

func NewServer(l *zap.Logger, sites repo.SiteStore) *Server {
	return &Server{Logger: l, Sites: sites}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/sites", s.handleListSites)
	r.Post("/api/push/{token}", s.handlePush)

	return r
}

// siteStatus is the public snapshot; connection parameters stay private.
type siteStatus struct {
	ID           domain.SiteID      `json:"id"`
	Name         string             `json:"name"`
	Type         domain.MonitorType `json:"type"`
	Status       domain.Status      `json:"status"`
	ResponseTime int64              `json:"response_time_ms"`
	LastCheck    time.Time          `json:"last_check"`
	Message      string             `json:"message,omitempty"`
	SSLCert      *domain.CertInfo   `json:"ssl_cert,omitempty"`
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Sites.List(r.Context())
	if err != nil {
		http.Error(w, "list error", http.StatusInternalServerError)
		return
	}
	out := make([]siteStatus, 0, len(sites))
	for _, site := range sites {
		out = append(out, siteStatus{
			ID:           site.ID,
			Name:         site.Name,
			Type:         site.Type,
			Status:       site.Status,
			ResponseTime: site.ResponseTime,
			LastCheck:    site.LastCheck,
			Message:      site.Message,
			SSLCert:      site.SSLCert,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handlePush records a heartbeat. The body is optional free-form JSON
// metrics; a numeric "latency" field becomes the site's response time on the
// next sweep.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	site, err := s.Sites.GetByPushToken(r.Context(), token)
	if err != nil {
		http.Error(w, "lookup error", http.StatusInternalServerError)
		return
	}
	if site == nil {
		http.Error(w, "unknown token", http.StatusNotFound)
		return
	}

	var data map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&data) // absent/invalid body is fine
	}

	now := time.Now().UTC()
	if err := s.Sites.UpdateHeartbeat(r.Context(), site.ID, now, data); err != nil {
		http.Error(w, "update error", http.StatusInternalServerError)
		return
	}

	s.Logger.Debug("heartbeat_received",
		zap.String("site_id", string(site.ID)),
	)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "received_at": now})
}
