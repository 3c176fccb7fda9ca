package core

// ConversationMeta describes one conversation key as the extractor saw it.
type ConversationMeta struct {
	Key string
	// Names lists participants the source declares for the conversation,
	// including ones that never sent anything.
	Names []string
	// Group is the store's own group flag. Only sources that carry one set it.
	Group bool
}

// Extraction is everything an extractor hands to the assembler. Original names
// in it must not outlive the pipeline run.
type Extraction struct {
	Source        DataSource
	DonorName     string
	Records       []RawRecord
	Conversations []ConversationMeta
	// Dropped counts records discarded during extraction, by reason.
	Dropped map[string]int
	Flags   []string
}

// Drop increments a drop counter.
func (e *Extraction) Drop(reason string) { e.DropN(reason, 1) }

// DropN adds n to a drop counter.
func (e *Extraction) DropN(reason string, n int) {
	if n <= 0 {
		return
	}
	if e.Dropped == nil {
		e.Dropped = make(map[string]int)
	}
	e.Dropped[reason] += n
}

// Flag records a non-fatal condition worth surfacing, such as an undecided date order.
func (e *Extraction) Flag(flag string) {
	for _, f := range e.Flags {
		if f == flag {
			return
		}
	}
	e.Flags = append(e.Flags, flag)
}
