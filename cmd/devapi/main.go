package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"

	"github.com/jo25425/dona-sub000/internal/config"
	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
	"github.com/jo25425/dona-sub000/internal/httpapi"
	"github.com/jo25425/dona-sub000/internal/pipeline"
	"github.com/jo25425/dona-sub000/internal/sink"
)

const maxUpload = 256 << 20

type failure struct {
	Reason  donation.Reason `json:"reason"`
	Context map[string]any  `json:"context,omitempty"`
	RunID   string          `json:"run_id"`
}

func main() {
	var (
		addr   string
		sqlite string
	)

	flag.StringVar(&addr, "addr", ":8765", "HTTP listen address")
	flag.StringVar(&sqlite, "db", "devapi.db", "SQLite ledger path")
	flag.Parse()

	ledger, err := sink.OpenLedger(sqlite, false)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()
	if err := ledger.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}

	cfg := config.Load()
	waOpts, err := cfg.WhatsAppOptions()
	if err != nil {
		log.Fatalf("whatsapp options: %v", err)
	}
	template := pipeline.Request{WhatsApp: waOpts, MaxParallel: cfg.MaxParallel}

	log.Printf("devapi listening on %s (db=%s)", addr, sqlite)

	mux := http.NewServeMux()
	mux.Handle("POST /donate", donateHandler(ledger, template))

	mux.HandleFunc("GET /runs", func(w http.ResponseWriter, r *http.Request) {
		filters, err := httpapi.FiltersFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		list, err := ledger.List(r.Context(), filters)
		if err != nil {
			http.Error(w, "list failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// donateHandler runs the pipeline on the multipart "files" of the request
// and answers with the donor-facing result. template supplies everything but
// the source and files. The original-name mapping is never sent.
func donateHandler(rec sink.Recorder, template pipeline.Request) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src, ok := core.ParseDataSource(r.URL.Query().Get("source"))
		if !ok {
			http.Error(w, "source must be one of whatsapp, facebook, instagram, imessage", http.StatusBadRequest)
			return
		}
		files, err := readUploads(r)
		if err != nil {
			http.Error(w, "bad upload: "+err.Error(), http.StatusBadRequest)
			return
		}

		req := template
		req.Source = src
		req.Files = files
		req.Trace = pipeline.NewTrace(req)
		res, runErr := pipeline.Run(r.Context(), req)
		run := pipeline.RunRecord(req.Trace, src, res, runErr)
		if err := rec.Record(r.Context(), run); err != nil {
			log.Printf("devapi: record run: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		if runErr != nil {
			de := donation.Normalize(runErr)
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(failure{Reason: de.Reason, Context: de.Context, RunID: run.RunID})
			return
		}
		data, err := sink.MarshalResult(res, false)
		if err != nil {
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(data)
	})
}

func readUploads(r *http.Request) ([]core.File, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, err
	}
	var out []core.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, core.File{Name: fh.Filename, Data: data})
	}
	return out, nil
}
