// Package whatsapp extracts raw records from line-oriented WhatsApp text
// exports, one file per chat.
package whatsapp

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/jo25425/dona-sub000/internal/archive"
	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/dates"
	"github.com/jo25425/dona-sub000/internal/donation"
)

// EncryptionNotice is the platform notice excluded from every chat.
const EncryptionNotice = "Messages to this chat and calls are now secured with end-to-end encryption."

// FlagDateOrderIndeterminate is set when no date heuristic could decide and
// dates were read month-first.
const FlagDateOrderIndeterminate = "date_order_indeterminate"

type Options struct {
	MinFiles    int
	MaxFiles    int
	MinMessages int
	MinContacts int
	Location    *time.Location
	MaxParallel int
	Logger      *slog.Logger
}

type parsedFile struct {
	name    string
	lines   []Line
	authors []string
	triples []dates.Triple
}

// Extract parses every file of one donor's export. Files are parsed
// concurrently; nothing here touches a pseudonym registry.
func Extract(ctx context.Context, files []core.File, opts Options) (core.Extraction, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	files, err := archive.ExpandText(files)
	if err != nil {
		return core.Extraction{}, err
	}
	if err := checkFileSet(files, opts); err != nil {
		return core.Extraction{}, err
	}

	parsed := make([]parsedFile, len(files))
	g, _ := errgroup.WithContext(ctx)
	if opts.MaxParallel > 0 {
		g.SetLimit(opts.MaxParallel)
	}
	for i, f := range files {
		g.Go(func() error {
			p, err := parseFile(f)
			if err != nil {
				return err
			}
			parsed[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.Extraction{}, err
	}

	for i, p := range parsed {
		if len(p.lines) < opts.MinMessages || len(p.authors) < opts.MinContacts {
			return core.Extraction{}, donation.New(donation.TooFewContactsOrMessages, map[string]any{
				"file":     i,
				"messages": len(p.lines),
				"contacts": len(p.authors),
			})
		}
	}

	donor, ok := resolveDonor(parsed)
	if !ok {
		return core.Extraction{}, donation.New(donation.NoDonorNameFound, nil)
	}

	seqs := make([][]dates.Triple, len(parsed))
	for i, p := range parsed {
		seqs[i] = p.triples
	}
	order := dates.Infer(seqs)

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	out := core.Extraction{Source: core.WhatsApp, DonorName: donor}
	if order == dates.Indeterminate {
		out.Flag(FlagDateOrderIndeterminate)
		logger.Warn("whatsapp: date order indeterminate, reading month first", "files", len(parsed))
	}

	for i, p := range parsed {
		key := fmt.Sprintf("%d:%s", i, p.name)
		out.Conversations = append(out.Conversations, core.ConversationMeta{Key: key})
		for _, l := range p.lines {
			if strings.TrimSpace(l.Body) == "" {
				out.Drop("empty")
				continue
			}
			if strings.Contains(l.Body, EncryptionNotice) {
				out.Drop("system_notice")
				continue
			}
			ts, err := dates.EpochMillis(l.Date, l.Clock, l.AMPM, order, loc)
			if err != nil {
				return core.Extraction{}, errors.Wrapf(err, "file %d", i)
			}
			sender := l.Author
			if l.System {
				sender = core.SystemSender
			}
			out.Records = append(out.Records, core.RawRecord{
				SenderName:      sender,
				TimestampMillis: ts,
				ConversationKey: key,
				Payload:         core.TextPayload{WordCount: len(strings.Fields(l.Body)), Text: l.Body},
			})
		}
	}

	logger.Info("whatsapp: extracted",
		"files", len(parsed),
		"records", len(out.Records),
		"date_order", order.String(),
	)
	return out, nil
}

func checkFileSet(files []core.File, opts Options) error {
	if len(files) == 0 {
		return donation.New(donation.NoFiles, nil)
	}
	if (opts.MinFiles > 0 && len(files) < opts.MinFiles) || (opts.MaxFiles > 0 && len(files) > opts.MaxFiles) {
		return donation.New(donation.Not5to7Files, map[string]any{
			"count": len(files),
			"min":   opts.MinFiles,
			"max":   opts.MaxFiles,
		})
	}
	seen := make(map[[sha256.Size]byte]int, len(files))
	for i, f := range files {
		sum := sha256.Sum256(f.Data)
		if j, dup := seen[sum]; dup {
			return donation.New(donation.SameFiles, map[string]any{"first": j, "second": i})
		}
		seen[sum] = i
	}
	return nil
}

func parseFile(f core.File) (parsedFile, error) {
	lines := ParseLines(SplitLines(string(f.Data)))
	raw := make([]string, 0, len(lines))
	for _, l := range lines {
		raw = append(raw, l.Date)
	}
	triples, err := dates.Distinct(raw)
	if err != nil {
		return parsedFile{}, errors.Wrapf(err, "parse %s", f.Name)
	}
	return parsedFile{name: f.Name, lines: lines, authors: Authors(lines), triples: triples}, nil
}

// resolveDonor picks the first author of the first file who appears in every file.
func resolveDonor(files []parsedFile) (string, bool) {
	if len(files) == 0 {
		return "", false
	}
	for _, candidate := range files[0].authors {
		everywhere := true
		for _, f := range files[1:] {
			if !contains(f.authors, candidate) {
				everywhere = false
				break
			}
		}
		if everywhere {
			return candidate, true
		}
	}
	return "", false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
