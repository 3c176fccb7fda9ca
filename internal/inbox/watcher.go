// Package inbox runs the pipeline on exports dropped into a watched
// directory. Each source has its own subdirectory (inbox/whatsapp,
// inbox/facebook, ...); every file pending there when the directory goes
// quiet forms one donation. Inputs are moved to processed/<run_id> or
// failed/<run_id> afterwards.
package inbox

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/jo25425/dona-sub000/internal/archive"
	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
	"github.com/jo25425/dona-sub000/internal/metrics"
	"github.com/jo25425/dona-sub000/internal/pipeline"
	"github.com/jo25425/dona-sub000/internal/sink"
	"github.com/jo25425/dona-sub000/internal/validate"
)

const (
	processedDir = "processed"
	failedDir    = "failed"

	defaultDebounce = 250 * time.Millisecond
	defaultInterval = time.Second
)

type Options struct {
	Dir            string
	OutDir         string
	IncludeMapping bool

	// Request is the template for every run; Source, Files and Trace are
	// set per donation.
	Request pipeline.Request
	// Thresholds, when set, picks the gate thresholds per source.
	Thresholds func(core.DataSource) validate.Thresholds

	Recorder sink.Recorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// Debounce is the quiet period before a directory is scanned.
	Debounce time.Duration
	// Interval is the minimum spacing between two pipeline runs.
	Interval time.Duration
}

type Watcher struct {
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New prepares the per-source directories under opts.Dir.
func New(opts Options) (*Watcher, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("inbox: directory required")
	}
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.Interval), 1),
		logger:  logger,
	}
	for _, dir := range w.Dirs() {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrapf(err, "inbox: create %s", dir)
		}
	}
	return w, nil
}

// Dirs lists the watched source directories.
func (w *Watcher) Dirs() []string {
	out := make([]string, 0, len(core.Sources))
	for _, src := range core.Sources {
		out = append(out, w.sourceDir(src))
	}
	return out
}

func (w *Watcher) sourceDir(src core.DataSource) string {
	return filepath.Join(w.opts.Dir, strings.ToLower(string(src)))
}

// Run scans once, then again after each burst of file events settles. It
// returns when ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "inbox: watcher")
	}
	defer fw.Close()

	for _, dir := range w.Dirs() {
		if err := fw.Add(dir); err != nil {
			return errors.Wrapf(err, "inbox: watch %s", dir)
		}
	}
	log.Printf("inbox: watching %s", w.opts.Dir)

	if _, err := w.Scan(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("inbox: scan failed", "err", err)
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(w.opts.Debounce)
			}
		case <-debounce.C:
			if _, err := w.Scan(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("inbox: scan failed", "err", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox: watch error", "err", err)
		}
	}
}

// Scan runs one donation per source directory that has pending files.
func (w *Watcher) Scan(ctx context.Context) ([]core.RunRecord, error) {
	var out []core.RunRecord
	for _, src := range core.Sources {
		paths, err := pending(w.sourceDir(src))
		if err != nil {
			return out, err
		}
		if len(paths) == 0 {
			continue
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return out, err
		}
		rec, ok := w.process(ctx, src, paths)
		if !ok {
			return out, ctx.Err()
		}
		out = append(out, rec)
	}
	return out, nil
}

// process runs one donation. It reports false when ctx ended mid-run, in
// which case the inputs stay pending.
func (w *Watcher) process(ctx context.Context, src core.DataSource, paths []string) (core.RunRecord, bool) {
	req := w.opts.Request
	req.Source = src
	req.Metrics = w.opts.Metrics
	if w.opts.Thresholds != nil {
		th := w.opts.Thresholds(src)
		req.Thresholds = &th
	}
	if req.Logger == nil {
		req.Logger = w.logger
	}

	files, err := archive.ReadFiles(paths...)
	req.Files = files
	req.Trace = pipeline.NewTrace(req)

	var res core.AnonymizationResult
	if err == nil {
		res, err = pipeline.Run(ctx, req)
	}
	if ctx.Err() != nil {
		return core.RunRecord{}, false
	}

	rec := pipeline.RunRecord(req.Trace, src, res, err)
	if err == nil {
		out := sink.ResultPath(w.opts.OutDir, rec.RunID)
		if werr := sink.WriteResult(out, res, w.opts.IncludeMapping); werr != nil {
			w.logger.Error("inbox: write result", "run_id", rec.RunID, "err", werr)
			rec.Outcome = core.OutcomeFailed
			rec.Reason = string(donation.TransactionFailed)
		} else {
			rec.Output = out
		}
	}

	if w.opts.Recorder != nil {
		if rerr := w.opts.Recorder.Record(ctx, rec); rerr != nil {
			w.logger.Error("inbox: record run", "run_id", rec.RunID, "err", rerr)
		}
	}

	dest := processedDir
	if rec.Outcome != core.OutcomeOK {
		dest = failedDir
	}
	if merr := moveAll(paths, filepath.Join(w.sourceDir(src), dest, rec.RunID)); merr != nil {
		w.logger.Error("inbox: move inputs", "run_id", rec.RunID, "err", merr)
	}

	w.opts.Metrics.IncInboxEvent(rec.Outcome)
	if rec.Reason != "" {
		log.Printf("inbox: %s run %s %s (%s)", src, rec.RunID, rec.Outcome, rec.Reason)
	} else {
		log.Printf("inbox: %s run %s %s", src, rec.RunID, rec.Outcome)
	}
	return rec, true
}

// pending lists the settled regular files of dir, sorted by name. Hidden
// files and partial downloads are skipped.
func pending(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "inbox: list %s", dir)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || partial(name) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

func partial(name string) bool {
	for _, suffix := range []string{".part", ".tmp", ".crdownload"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func moveAll(paths []string, dest string) error {
	if err := os.MkdirAll(dest, 0o700); err != nil {
		return errors.Wrapf(err, "create %s", dest)
	}
	for _, p := range paths {
		if err := os.Rename(p, filepath.Join(dest, filepath.Base(p))); err != nil {
			return errors.Wrapf(err, "move %s", p)
		}
	}
	return nil
}
