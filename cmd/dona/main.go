package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/jo25425/dona-sub000/internal/aliases"
	"github.com/jo25425/dona-sub000/internal/archive"
	"github.com/jo25425/dona-sub000/internal/config"
	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
	httpadmin "github.com/jo25425/dona-sub000/internal/http"
	"github.com/jo25425/dona-sub000/internal/httpapi"
	"github.com/jo25425/dona-sub000/internal/inbox"
	"github.com/jo25425/dona-sub000/internal/metrics"
	"github.com/jo25425/dona-sub000/internal/pipeline"
	"github.com/jo25425/dona-sub000/internal/sink"
	"github.com/jo25425/dona-sub000/internal/version"
)

const dateLayout = "2006-01-02"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	os.Exit(run())
}

func run() int {
	var (
		versionFlag    bool
		sourceFlag     string
		outPath        string
		watchDir       string
		httpAddr       string
		locale         string
		fromFlag       string
		toFlag         string
		minMonths      int
		includeMapping bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&sourceFlag, "source", "", "Export source: whatsapp, facebook, instagram or imessage")
	flag.StringVar(&outPath, "out", "", "Result file (default: DONA_OUT_DIR/dona-<run_id>.json)")
	flag.StringVar(&watchDir, "watch", "", "Watch this directory for exports instead of processing arguments")
	flag.StringVar(&httpAddr, "http-addr", "", "Status API address (e.g., :8765)")
	flag.StringVar(&locale, "locale", "", "Alias locale (en, de, hy)")
	flag.StringVar(&fromFlag, "from", "", "Keep messages on or after this date (YYYY-MM-DD)")
	flag.StringVar(&toFlag, "to", "", "Keep messages on or before this date (YYYY-MM-DD)")
	flag.IntVar(&minMonths, "min-months", 0, "Require the kept range to span at least this many months")
	flag.BoolVar(&includeMapping, "include-mapping", false, "Also write the original-name to pseudonym mapping")
	flag.Parse()

	build := version.Get()
	if versionFlag {
		fmt.Printf("dona version: %s\n", build)
		return 0
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()
	if overrides["http-addr"] {
		cfg.HTTP.Addr = strings.TrimSpace(httpAddr)
	}
	if overrides["locale"] {
		cfg.Aliases.Locale = strings.TrimSpace(locale)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	log.Printf("%s", cfg.SummaryJSON())

	table, err := aliases.Default()
	if err != nil {
		log.Printf("dona: alias tables: %v", err)
		return 1
	}
	names, matched := table.Lookup(cfg.Aliases.Locale)
	names = aliases.Override(names, cfg.Aliases.Override)
	log.Printf("dona: aliases locale=%s (known %s) donor=%s contact=%s",
		matched, strings.Join(table.Locales(), ","), names.Donor, names.Contact)

	waOpts, err := cfg.WhatsAppOptions()
	if err != nil {
		log.Printf("dona: %v", err)
		return 1
	}
	loc, _ := cfg.Location()
	rng, err := parseRange(fromFlag, toFlag, minMonths, loc)
	if err != nil {
		log.Printf("dona: %v", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	template := pipeline.Request{
		Aliases:     names,
		WhatsApp:    waOpts,
		MaxParallel: cfg.MaxParallel,
		Logger:      logger,
		Metrics:     m,
		Range:       rng,
	}

	ledger, err := sink.OpenLedger(cfg.Sink.LedgerPath, cfg.Sink.SQLiteTuning)
	if err != nil {
		log.Printf("dona: open ledger: %v", err)
		return 1
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			log.Printf("dona: closing ledger: %v", err)
		}
	}()
	if err := ledger.Ping(); err != nil {
		log.Printf("dona: ping ledger: %v", err)
		return 1
	}
	var recorder sink.Recorder = sink.WithMetrics(ledger, m)

	var watcher *inbox.Watcher
	if watchDir != "" {
		buffered := sink.NewBufferedRecorder(recorder, sink.BufferedOptions{
			BatchSize:     16,
			FlushInterval: 2 * time.Second,
		})
		defer func() {
			if err := buffered.Close(); err != nil {
				log.Printf("dona: flush ledger: %v", err)
			}
		}()

		watcher, err = inbox.New(inbox.Options{
			Dir:            watchDir,
			OutDir:         cfg.Sink.OutDir,
			IncludeMapping: includeMapping,
			Request:        template,
			Thresholds:     cfg.Thresholds,
			Recorder:       buffered,
			Metrics:        m,
			Logger:         logger,
		})
		if err != nil {
			log.Printf("dona: %v", err)
			return 1
		}
	}

	if cfg.HTTP.Addr != "" {
		api := httpapi.New(ledger, httpapi.Options{
			Addr:           cfg.HTTP.Addr,
			RateLimitRPS:   cfg.HTTP.RateRPS,
			RateLimitBurst: cfg.HTTP.RateBurst,
			CORSOrigins:    cfg.HTTP.CORSOrigins,
			Metrics:        m,
			Logger:         logger,
			Build:          build,
		})
		if watcher != nil {
			httpadmin.New(watcher).Register(api.Router())
		}
		go func() {
			if err := api.Start(); err != nil {
				log.Printf("dona: http api: %v", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := api.Shutdown(shutdownCtx); err != nil {
				log.Printf("dona: http api shutdown: %v", err)
			}
		}()
	}

	if watcher != nil {
		if err := watcher.Run(ctx); err != nil {
			log.Printf("dona: watch: %v", err)
			return 1
		}
		log.Printf("dona: shutdown complete")
		return 0
	}

	src, ok := core.ParseDataSource(sourceFlag)
	if !ok {
		log.Printf("dona: -source must be one of whatsapp, facebook, instagram, imessage")
		return 2
	}

	files, err := archive.ReadFiles(flag.Args()...)
	if err != nil {
		log.Printf("dona: %v", err)
		return 1
	}

	req := template
	req.Source = src
	req.Files = files
	th := cfg.Thresholds(src)
	req.Thresholds = &th
	req.Trace = pipeline.NewTrace(req)

	res, runErr := pipeline.Run(ctx, req)
	rec := pipeline.RunRecord(req.Trace, src, res, runErr)
	if runErr == nil {
		path := outPath
		if path == "" {
			path = sink.ResultPath(cfg.Sink.OutDir, rec.RunID)
		}
		if err := sink.WriteResult(path, res, includeMapping); err != nil {
			log.Printf("dona: write result: %v", err)
			rec.Outcome = core.OutcomeFailed
			rec.Reason = string(donation.TransactionFailed)
			runErr = donation.New(donation.TransactionFailed, nil)
		} else {
			rec.Output = path
		}
	}
	if err := recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.Printf("dona: record run: %v", err)
	}

	if runErr != nil {
		log.Printf("dona: run %s failed: %v", rec.RunID, runErr)
		return 3
	}
	log.Printf("dona: run %s wrote %d conversations to %s", rec.RunID, rec.Conversations, rec.Output)
	return 0
}

// parseRange turns the -from/-to/-min-months flags into a pipeline range.
// Dates are whole days in loc; -to includes its whole day.
func parseRange(from, to string, minMonths int, loc *time.Location) (*pipeline.Range, error) {
	if from == "" && to == "" && minMonths <= 0 {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}
	rng := &pipeline.Range{MinMonths: minMonths}
	if from != "" {
		t, err := time.ParseInLocation(dateLayout, from, loc)
		if err != nil {
			return nil, errors.Wrap(err, "-from")
		}
		rng.From = t
	}
	if to != "" {
		t, err := time.ParseInLocation(dateLayout, to, loc)
		if err != nil {
			return nil, errors.Wrap(err, "-to")
		}
		rng.To = t.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	return rng, nil
}
