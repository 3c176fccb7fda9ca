// Package assemble folds raw records into pseudonymized conversations.
package assemble

import (
	"github.com/pkg/errors"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/pseudonym"
)

// Assembler groups records by conversation key. It writes to the registries it
// is given and must be driven from a single goroutine.
type Assembler struct {
	source   core.DataSource
	aliases  core.Aliases
	contacts *pseudonym.Registry
	chats    *pseudonym.ChatRegistry

	byKey   map[string]*building
	order   []*building
	dropped int
}

type building struct {
	meta         core.ConversationMeta
	conv         core.Conversation
	participants map[string]struct{}
}

func New(source core.DataSource, aliases core.Aliases, contacts *pseudonym.Registry, chats *pseudonym.ChatRegistry) *Assembler {
	return &Assembler{
		source:   source,
		aliases:  aliases,
		contacts: contacts,
		chats:    chats,
		byKey:    make(map[string]*building),
	}
}

// Declare registers a conversation and the participants its source lists for
// it before any record is seen.
func (a *Assembler) Declare(meta core.ConversationMeta) {
	b := a.get(meta.Key)
	b.meta = meta
	for _, name := range meta.Names {
		a.addParticipant(b, a.contacts.Pseudonym(name))
	}
}

// Add pseudonymizes one record and files it under its conversation.
func (a *Assembler) Add(rec core.RawRecord) {
	b := a.get(rec.ConversationKey)
	sender := a.contacts.Pseudonym(rec.SenderName)
	a.addParticipant(b, sender)

	switch p := rec.Payload.(type) {
	case core.TextPayload:
		b.conv.Messages = append(b.conv.Messages, core.Message{
			WordCount: p.WordCount,
			Timestamp: rec.TimestampMillis,
			Sender:    sender,
		})
	case core.AudioPayload:
		b.conv.MessagesAudio = append(b.conv.MessagesAudio, core.MessageAudio{
			LengthSeconds: p.LengthSeconds,
			Timestamp:     rec.TimestampMillis,
			Sender:        sender,
		})
	}
}

// Finish classifies and names every conversation that holds at least one
// message. Conversations with none are dropped. Every participant and sender
// must still be known to the contact registry.
func (a *Assembler) Finish() ([]core.Conversation, error) {
	out := make([]core.Conversation, 0, len(a.order))
	for _, b := range a.order {
		if b.conv.Empty() {
			a.dropped++
			continue
		}
		if err := a.check(b); err != nil {
			return nil, err
		}
		conv := b.conv
		conv.IsGroupConversation = a.isGroup(b)

		names := make([]string, 0, len(conv.Participants))
		for _, p := range conv.Participants {
			if p == a.aliases.System {
				continue
			}
			names = append(names, p)
		}
		conv.ConversationPseudonym = a.chats.Pseudonym(a.contacts.OriginalNames(names))
		out = append(out, conv)
	}
	return out, nil
}

func (a *Assembler) check(b *building) error {
	for _, p := range b.conv.Participants {
		if !a.contacts.Has(p) {
			return errors.Errorf("assemble: participant %q is not registered", p)
		}
	}
	for _, m := range b.conv.Messages {
		if !a.contacts.Has(m.Sender) {
			return errors.Errorf("assemble: sender %q is not registered", m.Sender)
		}
	}
	for _, m := range b.conv.MessagesAudio {
		if !a.contacts.Has(m.Sender) {
			return errors.Errorf("assemble: sender %q is not registered", m.Sender)
		}
	}
	return nil
}

// Dropped is the number of conversations Finish discarded as empty.
func (a *Assembler) Dropped() int { return a.dropped }

// isGroup applies each source's own rule. Text exports count real contacts;
// Meta archives count every listed participant; the Messages store flags
// groups itself.
func (a *Assembler) isGroup(b *building) bool {
	switch a.source {
	case core.IMessage:
		return b.meta.Group
	case core.Facebook, core.Instagram:
		return len(b.conv.Participants) > 2
	default:
		contacts := 0
		for _, p := range b.conv.Participants {
			if p != a.aliases.Donor && p != a.aliases.System {
				contacts++
			}
		}
		return contacts > 1
	}
}

func (a *Assembler) get(key string) *building {
	if b, ok := a.byKey[key]; ok {
		return b
	}
	b := &building{
		meta: core.ConversationMeta{Key: key},
		conv: core.Conversation{
			DataSource:    a.source,
			Participants:  []string{},
			Messages:      []core.Message{},
			MessagesAudio: []core.MessageAudio{},
		},
		participants: make(map[string]struct{}),
	}
	a.byKey[key] = b
	a.order = append(a.order, b)
	return b
}

func (a *Assembler) addParticipant(b *building, p string) {
	if _, ok := b.participants[p]; ok {
		return
	}
	b.participants[p] = struct{}{}
	b.conv.Participants = append(b.conv.Participants, p)
}
