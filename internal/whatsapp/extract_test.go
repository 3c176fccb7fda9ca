package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
)

func chatFile(name string, lines ...string) core.File {
	return core.File{Name: name, Data: []byte(strings.Join(lines, "\n"))}
}

func lenientOptions() Options {
	return Options{MinContacts: 2, Location: time.UTC}
}

func TestExtractTwoFiles(t *testing.T) {
	a := chatFile("a.txt",
		"13/01/2020, 10:00 - Alice: Hello there",
		"13/01/2020, 10:01 - Bob: Hi",
		"continued line",
	)
	b := chatFile("b.txt",
		"14/01/2020, 11:00 - Carol: Morning",
		"14/01/2020, 11:05 - Alice: Good morning to you",
		"14/01/2020, 11:06 - "+EncryptionNotice,
	)
	ext, err := Extract(context.Background(), []core.File{a, b}, lenientOptions())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if ext.DonorName != "Alice" {
		t.Fatalf("expected donor Alice, got %q", ext.DonorName)
	}
	if len(ext.Conversations) != 2 {
		t.Fatalf("expected two conversations, got %d", len(ext.Conversations))
	}
	if len(ext.Records) != 4 {
		t.Fatalf("expected notice excluded, got %d records", len(ext.Records))
	}
	if ext.Dropped["system_notice"] != 1 {
		t.Fatalf("expected one dropped notice, got %v", ext.Dropped)
	}

	bob := ext.Records[1]
	text, ok := bob.Payload.(core.TextPayload)
	if !ok || text.WordCount != 3 || text.Text != "Hi\ncontinued line" {
		t.Fatalf("unexpected folded payload %+v", bob.Payload)
	}
	want := time.Date(2020, time.January, 13, 10, 1, 0, 0, time.UTC).UnixMilli()
	if bob.TimestampMillis != want {
		t.Fatalf("unexpected timestamp %d want %d", bob.TimestampMillis, want)
	}
	if len(ext.Flags) != 0 {
		t.Fatalf("date order was decidable, got flags %v", ext.Flags)
	}
}

func TestExtractSystemEventsUseSystemSender(t *testing.T) {
	a := chatFile("a.txt",
		"01/02/2020, 10:00 - Alice: Hi",
		"01/02/2020, 10:01 - Bob: Hey",
		"01/02/2020, 10:02 - Bob changed his phone number",
	)
	ext, err := Extract(context.Background(), []core.File{a}, lenientOptions())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	last := ext.Records[len(ext.Records)-1]
	if last.SenderName != core.SystemSender {
		t.Fatalf("expected system sender, got %q", last.SenderName)
	}
	if len(ext.Flags) != 1 || ext.Flags[0] != FlagDateOrderIndeterminate {
		t.Fatalf("expected indeterminate flag, got %v", ext.Flags)
	}
}

func TestExtractFileSetErrors(t *testing.T) {
	ctx := context.Background()
	opts := lenientOptions()

	if _, err := Extract(ctx, nil, opts); !donation.Is(err, donation.NoFiles) {
		t.Fatalf("expected NoFiles, got %v", err)
	}

	same := chatFile("a.txt", "01/02/2020, 10:00 - Alice: Hi", "01/02/2020, 10:01 - Bob: Hey")
	copyOf := core.File{Name: "b.txt", Data: same.Data}
	if _, err := Extract(ctx, []core.File{same, copyOf}, opts); !donation.Is(err, donation.SameFiles) {
		t.Fatalf("expected SameFiles, got %v", err)
	}

	opts.MinFiles, opts.MaxFiles = 5, 7
	_, err := Extract(ctx, []core.File{same}, opts)
	if !donation.Is(err, donation.Not5to7Files) {
		t.Fatalf("expected Not5to7Files, got %v", err)
	}
	de := donation.Normalize(err)
	if de.Context["count"] != 1 {
		t.Fatalf("expected count context, got %v", de.Context)
	}
}

func TestExtractThresholds(t *testing.T) {
	lonely := chatFile("a.txt", "01/02/2020, 10:00 - Alice: Hi", "01/02/2020, 10:01 - Alice: anyone?")
	_, err := Extract(context.Background(), []core.File{lonely}, lenientOptions())
	if !donation.Is(err, donation.TooFewContactsOrMessages) {
		t.Fatalf("expected TooFewContactsOrMessages, got %v", err)
	}

	opts := lenientOptions()
	opts.MinMessages = 100
	lines := make([]string, 0, 99)
	for i := 0; i < 99; i++ {
		lines = append(lines, fmt.Sprintf("01/02/2020, 10:%02d - %s: msg", i%60, []string{"Alice", "Bob"}[i%2]))
	}
	if _, err := Extract(context.Background(), []core.File{chatFile("a.txt", lines...)}, opts); !donation.Is(err, donation.TooFewContactsOrMessages) {
		t.Fatalf("expected threshold error for 99 messages, got %v", err)
	}
}

func TestExtractNoCommonDonor(t *testing.T) {
	a := chatFile("a.txt", "01/02/2020, 10:00 - Alice: Hi", "01/02/2020, 10:01 - Bob: Hey")
	b := chatFile("b.txt", "01/02/2020, 10:00 - Carol: Hi", "01/02/2020, 10:01 - Dan: Hello")
	if _, err := Extract(context.Background(), []core.File{a, b}, lenientOptions()); !donation.Is(err, donation.NoDonorNameFound) {
		t.Fatalf("expected NoDonorNameFound, got %v", err)
	}
}
