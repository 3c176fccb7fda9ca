// Package pipeline runs one donation end to end: extraction, pseudonymization,
// assembly and the validation gate.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jo25425/dona-sub000/internal/aliases"
	"github.com/jo25425/dona-sub000/internal/assemble"
	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
	"github.com/jo25425/dona-sub000/internal/imessage"
	"github.com/jo25425/dona-sub000/internal/ingesttrace"
	"github.com/jo25425/dona-sub000/internal/meta"
	"github.com/jo25425/dona-sub000/internal/metrics"
	"github.com/jo25425/dona-sub000/internal/pseudonym"
	"github.com/jo25425/dona-sub000/internal/validate"
	"github.com/jo25425/dona-sub000/internal/whatsapp"
)

// Request is one donation. Only Source and Files are required.
type Request struct {
	Source core.DataSource
	Files  []core.File

	// Aliases fields left empty fall back to core.DefaultAliases.
	Aliases core.Aliases
	// Thresholds defaults to validate.DefaultThresholds(Source).
	Thresholds *validate.Thresholds
	// WhatsApp carries file bounds, per-file thresholds and the time zone.
	// MaxParallel and Logger are filled in by Run.
	WhatsApp    whatsapp.Options
	MaxParallel int

	// Range, when set, keeps only the messages the donor chose to share.
	Range *Range

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Trace is created by Run when nil.
	Trace *ingesttrace.RunTrace
}

// Range bounds the shared messages. Zero times leave that side open.
type Range struct {
	From      time.Time
	To        time.Time
	MinMonths int
}

// NewTrace starts a trace with a fresh run id for req.
func NewTrace(req Request) *ingesttrace.RunTrace {
	data := make([][]byte, len(req.Files))
	for i, f := range req.Files {
		data[i] = f.Data
	}
	return ingesttrace.NewRunTrace(uuid.NewString(), string(req.Source), data)
}

// Run processes req. Every error it returns is a *donation.Error.
func Run(ctx context.Context, req Request) (core.AnonymizationResult, error) {
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trace := req.Trace
	if trace == nil {
		trace = NewTrace(req)
		req.Trace = trace
	}
	started := time.Now()

	res, err := run(ctx, req, logger)

	reason := ""
	if err != nil {
		de := donation.Normalize(err)
		if donation.ReasonOf(err) == "" {
			logger.Error("pipeline: unexpected failure", "run_id", trace.RunID, "err", err)
		}
		reason = string(de.Reason)
		trace.LogTrace(logger, "pipeline: run failed")
		req.Metrics.ObserveRun(string(req.Source), reason, time.Since(started))
		return core.AnonymizationResult{}, de
	}

	trace.LogTrace(logger, "pipeline: run")
	req.Metrics.ObserveRun(string(req.Source), reason, time.Since(started))
	return res, nil
}

func run(ctx context.Context, req Request, logger *slog.Logger) (core.AnonymizationResult, error) {
	names := aliases.Override(core.DefaultAliases, req.Aliases)

	ex, err := extract(ctx, req, names, logger)
	if err != nil {
		return core.AnonymizationResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return core.AnonymizationResult{}, errors.Wrap(err, "after extraction")
	}
	record(req, ex)

	contacts := pseudonym.NewRegistry(names.Contact)
	if err := contacts.Set(core.SystemSender, names.System); err != nil {
		return core.AnonymizationResult{}, errors.Wrap(err, "pin system")
	}
	chats := pseudonym.NewChatRegistry(names.Donor, names.Chat, req.Source)
	if ex.DonorName != "" {
		if err := contacts.Set(ex.DonorName, names.Donor); err != nil {
			return core.AnonymizationResult{}, errors.Wrap(err, "pin donor")
		}
		// The Messages store has no donor name, only a generated key.
		if req.Source != core.IMessage {
			chats.SetDonorName(ex.DonorName)
		}
	}

	asm := assemble.New(req.Source, names, contacts, chats)
	for _, m := range ex.Conversations {
		asm.Declare(m)
	}
	for _, rec := range ex.Records {
		asm.Add(rec)
	}
	convs, err := asm.Finish()
	if err != nil {
		return core.AnonymizationResult{}, err
	}

	req.Trace.AddCounter(ingesttrace.StageDropped("empty_conversation"), int64(asm.Dropped()))
	req.Metrics.AddDropped(string(req.Source), "empty_conversation", asm.Dropped())
	req.Trace.AddCounter(ingesttrace.StageConversationsAssembled, int64(len(convs)))

	th := validate.DefaultThresholds(req.Source)
	if req.Thresholds != nil {
		th = *req.Thresholds
	}
	if err := validate.Gate(convs, th); err != nil {
		return core.AnonymizationResult{}, err
	}

	shown := chats.Mapping()
	if req.Range != nil {
		kept, err := validate.FilterRange(convs, req.Range.From, req.Range.To, req.Range.MinMonths)
		if err != nil {
			return core.AnonymizationResult{}, err
		}
		req.Trace.AddCounter(ingesttrace.StageDropped("out_of_range_conversation"), int64(len(convs)-len(kept)))
		convs = kept
		shown = visibleChats(shown, convs, names.Donor)
	}

	mapping := contacts.Map()
	delete(mapping, core.SystemSender)

	logger.Info("pipeline: assembled",
		"run_id", req.Trace.RunID,
		"source", string(req.Source),
		"conversations", len(convs),
		"participants", len(mapping),
		"registered", contacts.Len(),
	)
	return core.AnonymizationResult{
		AnonymizedConversations:      convs,
		ParticipantNamesToPseudonyms: mapping,
		ChatMappingToShow:            shown,
	}, nil
}

// visibleChats drops chat entries whose conversation was filtered out.
func visibleChats(shown map[string][]string, convs []core.Conversation, donor string) map[string][]string {
	out := make(map[string][]string, len(convs)+1)
	if names, ok := shown[donor]; ok {
		out[donor] = names
	}
	for _, c := range convs {
		if names, ok := shown[c.ConversationPseudonym]; ok {
			out[c.ConversationPseudonym] = names
		}
	}
	return out
}

func extract(ctx context.Context, req Request, names core.Aliases, logger *slog.Logger) (core.Extraction, error) {
	switch req.Source {
	case core.WhatsApp:
		opts := req.WhatsApp
		opts.MaxParallel = req.MaxParallel
		opts.Logger = logger
		return whatsapp.Extract(ctx, req.Files, opts)
	case core.Facebook, core.Instagram:
		return meta.Extract(ctx, req.Files, req.Source, meta.Options{MaxParallel: req.MaxParallel, Logger: logger})
	case core.IMessage:
		return imessage.Extract(ctx, req.Files, imessage.Options{Logger: logger})
	}
	return core.Extraction{}, errors.Errorf("unsupported source %q", req.Source)
}

// record copies extractor counters into the trace and metrics.
func record(req Request, ex core.Extraction) {
	src := string(req.Source)
	req.Trace.AddCounter(ingesttrace.StageRecordsExtracted, int64(len(ex.Records)))
	req.Metrics.AddRecords(src, len(ex.Records))
	for reason, n := range ex.Dropped {
		req.Trace.AddCounter(ingesttrace.StageDropped(reason), int64(n))
		req.Metrics.AddDropped(src, reason, n)
	}
	for _, f := range ex.Flags {
		if f == whatsapp.FlagDateOrderIndeterminate {
			req.Trace.IncCounter(ingesttrace.StageDateOrderIndeterminate)
		}
	}
}
