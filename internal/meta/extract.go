// Package meta extracts raw records from Facebook and Instagram archives,
// which share one paginated JSON layout.
package meta

import (
	"context"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/jo25425/dona-sub000/internal/archive"
	"github.com/jo25425/dona-sub000/internal/audio"
	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
	"github.com/jo25425/dona-sub000/internal/textrepair"
)

var messagePageRe = regexp.MustCompile(`(^|/)message(_\d+)?\.json$`)

type Options struct {
	MaxParallel int
	Logger      *slog.Logger
}

type message struct {
	sender  string
	ts      int64
	payload core.Payload
}

type page struct {
	threadPath   string
	participants []string
	messages     []message
	unclassified int
}

type thread struct {
	meta     core.ConversationMeta
	messages []message
}

// Extract reads every archive of one donation for a Facebook or Instagram
// source. Either the whole archive set yields an extraction or an error is
// returned.
func Extract(ctx context.Context, files []core.File, source core.DataSource, opts Options) (core.Extraction, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profile, ok := Profiles[source]
	if !ok {
		return core.Extraction{}, errors.Errorf("meta: unsupported source %q", source)
	}
	if len(files) == 0 {
		return core.Extraction{}, donation.New(donation.NoFiles, nil)
	}

	entries, err := archive.Entries(files)
	if err != nil {
		return core.Extraction{}, err
	}

	var (
		profiles []archive.Entry
		pages    []archive.Entry
		audios   []archive.Entry
	)
	for _, e := range entries {
		switch {
		case e.Base() == profile.FileName:
			profiles = append(profiles, e)
		case messagePageRe.MatchString(e.Name):
			pages = append(pages, e)
		case strings.HasSuffix(strings.ToLower(e.Name), ".wav"):
			audios = append(audios, e)
		}
	}
	if len(profiles) != 1 {
		return core.Extraction{}, donation.New(donation.NoProfile, map[string]any{"count": len(profiles)})
	}
	if len(pages) == 0 {
		return core.Extraction{}, donation.New(donation.NoMessageEntries, nil)
	}

	profileDoc, err := profiles[0].ReadAll()
	if err != nil {
		return core.Extraction{}, err
	}
	donor, err := profile.DonorName(profileDoc)
	if err != nil {
		return core.Extraction{}, err
	}

	parsed := make([]page, len(pages))
	g, _ := errgroup.WithContext(ctx)
	if opts.MaxParallel > 0 {
		g.SetLimit(opts.MaxParallel)
	}
	for i, entry := range pages {
		g.Go(func() error {
			p, err := parsePage(entry, audios)
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

	threads := mergeThreads(parsed)

	out := core.Extraction{Source: source, DonorName: donor}
	for _, p := range parsed {
		out.DropN("unclassified", p.unclassified)
	}
	for _, t := range threads {
		if len(t.messages) == 0 {
			out.Drop("empty_conversation")
			continue
		}
		out.Conversations = append(out.Conversations, t.meta)
		for _, m := range t.messages {
			out.Records = append(out.Records, core.RawRecord{
				SenderName:      m.sender,
				TimestampMillis: m.ts,
				ConversationKey: t.meta.Key,
				Payload:         m.payload,
			})
		}
	}

	logger.Info("meta: extracted",
		"source", string(source),
		"pages", len(pages),
		"conversations", len(out.Conversations),
		"records", len(out.Records),
	)
	return out, nil
}

// mergeThreads concatenates pages that share a thread path, keeping the order
// in which threads were first seen.
func mergeThreads(pages []page) []*thread {
	index := make(map[string]*thread)
	var order []*thread
	for _, p := range pages {
		t, ok := index[p.threadPath]
		if !ok {
			t = &thread{meta: core.ConversationMeta{Key: p.threadPath}}
			index[p.threadPath] = t
			order = append(order, t)
		}
		for _, name := range p.participants {
			if !containsName(t.meta.Names, name) {
				t.meta.Names = append(t.meta.Names, name)
			}
		}
		t.messages = append(t.messages, p.messages...)
	}
	return order
}

func parsePage(entry archive.Entry, audios []archive.Entry) (page, error) {
	data, err := entry.ReadAll()
	if err != nil {
		return page{}, err
	}
	if !gjson.ValidBytes(data) {
		return page{}, errors.Errorf("meta: invalid json in %s", entry.Name)
	}
	doc := gjson.ParseBytes(data)

	p := page{threadPath: textrepair.String(doc.Get("thread_path"))}
	if p.threadPath == "" {
		p.threadPath = path.Dir(entry.Name)
	}
	for _, participant := range doc.Get("participants").Array() {
		if name := textrepair.String(participant.Get("name")); name != "" {
			p.participants = append(p.participants, name)
		}
	}
	for _, m := range doc.Get("messages").Array() {
		msg, ok := classify(m, audios)
		if !ok {
			p.unclassified++
			continue
		}
		p.messages = append(p.messages, msg)
	}
	return p, nil
}

// classify decides once, at the parse boundary, whether a message is audio or
// text. Audio takes precedence when both shapes match.
func classify(m gjson.Result, audios []archive.Entry) (message, bool) {
	sender, ts := m.Get("sender_name"), m.Get("timestamp_ms")
	if !sender.Exists() || !ts.Exists() {
		return message{}, false
	}
	msg := message{sender: textrepair.String(sender), ts: ts.Int()}

	if files := m.Get("audio_files"); files.Exists() {
		msg.payload = core.AudioPayload{LengthSeconds: measure(files.Get("0.uri").String(), audios)}
		return msg, true
	}
	if content := m.Get("content"); content.Exists() {
		text := textrepair.String(content)
		msg.payload = core.TextPayload{WordCount: len(strings.Fields(text)), Text: text}
		return msg, true
	}
	return message{}, false
}

func measure(uri string, audios []archive.Entry) int {
	if uri == "" {
		return core.DurationUnknown
	}
	for _, e := range audios {
		if e.Name == uri || strings.HasSuffix(e.Name, "/"+uri) {
			data, err := e.ReadAll()
			if err != nil {
				return core.DurationFailed
			}
			return audio.Seconds(data)
		}
	}
	return core.DurationUnknown
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
