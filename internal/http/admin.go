package httpadmin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jo25425/dona-sub000/internal/core"
)

type Scanner interface {
	Scan(ctx context.Context) ([]core.RunRecord, error)
}

type Server struct {
	scanner Scanner
}

func New(scanner Scanner) *Server { return &Server{scanner: scanner} }

type runSummary struct {
	RunID   string `json:"run_id"`
	Source  string `json:"source"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) Register(r chi.Router) {
	r.Get("/admin/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/admin/inbox/scan", func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.scanner.Scan(r.Context())
		if err != nil {
			http.Error(w, "scan failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]runSummary, 0, len(runs))
		for _, run := range runs {
			out = append(out, runSummary{
				RunID:   run.RunID,
				Source:  string(run.Source),
				Outcome: run.Outcome,
				Reason:  run.Reason,
			})
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "runs": out})
	})
}
