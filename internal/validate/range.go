package validate

import (
	"time"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
)

// MinMaxDates returns the earliest and latest timestamps across convs.
// With textOnly set, audio messages are ignored. ok is false when there is
// nothing to measure.
func MinMaxDates(convs []core.Conversation, textOnly bool) (first, last time.Time, ok bool) {
	var lo, hi int64
	see := func(ts int64) {
		if !ok || ts < lo {
			lo = ts
		}
		if !ok || ts > hi {
			hi = ts
		}
		ok = true
	}
	for _, c := range convs {
		for _, m := range c.Messages {
			see(m.Timestamp)
		}
		if textOnly {
			continue
		}
		for _, a := range c.MessagesAudio {
			see(a.Timestamp)
		}
	}
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return time.UnixMilli(lo).UTC(), time.UnixMilli(hi).UTC(), true
}

// FilterRange keeps the messages whose timestamps fall inside [from, to].
// A zero from or to leaves that side open. Conversations left without
// messages are dropped. minMonths > 0 requires the range, with open sides
// taken from the data, to cover at least that many calendar months.
func FilterRange(convs []core.Conversation, from, to time.Time, minMonths int) ([]core.Conversation, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, donation.New(donation.NonsenseRange, nil)
	}
	if minMonths > 0 {
		lo, hi := from, to
		if first, last, ok := MinMaxDates(convs, false); ok {
			if lo.IsZero() {
				lo = first
			}
			if hi.IsZero() {
				hi = last
			}
		}
		if lo.IsZero() || hi.IsZero() || lo.AddDate(0, minMonths, 0).After(hi) {
			return nil, donation.New(donation.NotEnoughMonthsInRange, map[string]any{"minMonths": minMonths})
		}
	}

	inside := func(ts int64) bool {
		if !from.IsZero() && ts < from.UnixMilli() {
			return false
		}
		if !to.IsZero() && ts > to.UnixMilli() {
			return false
		}
		return true
	}

	out := make([]core.Conversation, 0, len(convs))
	for _, c := range convs {
		kept := c
		kept.Messages = make([]core.Message, 0, len(c.Messages))
		for _, m := range c.Messages {
			if inside(m.Timestamp) {
				kept.Messages = append(kept.Messages, m)
			}
		}
		kept.MessagesAudio = make([]core.MessageAudio, 0, len(c.MessagesAudio))
		for _, a := range c.MessagesAudio {
			if inside(a.Timestamp) {
				kept.MessagesAudio = append(kept.MessagesAudio, a)
			}
		}
		if kept.Empty() {
			continue
		}
		out = append(out, kept)
	}
	if len(out) == 0 {
		return nil, donation.New(donation.NoMessagesInRange, nil)
	}
	return out, nil
}
