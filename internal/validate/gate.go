// Package validate holds the acceptance checks run over assembled conversations.
package validate

import (
	"time"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
)

// Thresholds configures Gate. Zero values disable the corresponding check.
type Thresholds struct {
	MinConversations int
	MinMessages      int // text plus audio, per conversation
	MinParticipants  int // distinct participants, per conversation
	MinSpan          time.Duration
}

// DefaultThresholds returns the per-source defaults. Text exports already
// enforce message and contact counts per file, so only the participant floor
// differs: a chat export always has the donor and at least one contact.
func DefaultThresholds(source core.DataSource) Thresholds {
	t := Thresholds{MinConversations: 1, MinMessages: 1, MinParticipants: 1}
	if source == core.WhatsApp {
		t.MinParticipants = 2
	}
	return t
}

// MinConversations reports whether convs holds at least n conversations.
func MinConversations(convs []core.Conversation, n int) bool {
	return len(convs) >= n
}

// MinActivity reports whether every conversation has at least minMessages
// messages (text and audio combined) and at least minParticipants distinct
// participants.
func MinActivity(convs []core.Conversation, minMessages, minParticipants int) bool {
	_, ok := firstInactive(convs, minMessages, minParticipants)
	return ok
}

func firstInactive(convs []core.Conversation, minMessages, minParticipants int) (int, bool) {
	for i, c := range convs {
		if activity(c) < minMessages || distinct(c.Participants) < minParticipants {
			return i, false
		}
	}
	return -1, true
}

// MinSpan reports whether the time between the earliest and latest message
// across convs is at least d. Without any messages only a zero d passes.
func MinSpan(convs []core.Conversation, d time.Duration) bool {
	return span(convs) >= d
}

// Gate runs the checks in order and returns the first failure as a
// *donation.Error.
func Gate(convs []core.Conversation, t Thresholds) error {
	if !MinConversations(convs, t.MinConversations) {
		return donation.New(donation.TooFewConversations, map[string]any{
			"count": len(convs),
			"min":   t.MinConversations,
		})
	}
	if i, ok := firstInactive(convs, t.MinMessages, t.MinParticipants); !ok {
		c := convs[i]
		return donation.New(donation.TooFewContactsOrMessages, map[string]any{
			"conversation": c.ConversationPseudonym,
			"messages":     activity(c),
			"participants": distinct(c.Participants),
		})
	}
	if !MinSpan(convs, t.MinSpan) {
		return donation.New(donation.DateSpanTooShort, map[string]any{
			"spanDays": int(span(convs) / (24 * time.Hour)),
			"minDays":  int(t.MinSpan / (24 * time.Hour)),
		})
	}
	return nil
}

func activity(c core.Conversation) int {
	return len(c.Messages) + len(c.MessagesAudio)
}

func distinct(names []string) int {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	return len(seen)
}

func span(convs []core.Conversation) time.Duration {
	first, last, ok := MinMaxDates(convs, false)
	if !ok {
		return 0
	}
	return last.Sub(first)
}
