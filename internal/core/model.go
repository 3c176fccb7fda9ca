package core

import "strings"

// DataSource identifies the platform an archive was exported from.
type DataSource string

const (
	WhatsApp  DataSource = "WhatsApp"
	Facebook  DataSource = "Facebook"
	Instagram DataSource = "Instagram"
	IMessage  DataSource = "IMessage"
)

// Sources lists every supported data source in display order.
var Sources = []DataSource{WhatsApp, Facebook, Instagram, IMessage}

// ParseDataSource matches a source name case-insensitively.
func ParseDataSource(raw string) (DataSource, bool) {
	raw = strings.TrimSpace(raw)
	for _, s := range Sources {
		if strings.EqualFold(raw, string(s)) {
			return s, true
		}
	}
	return "", false
}

// Initial is the single-letter prefix used in chat pseudonyms.
func (d DataSource) Initial() string {
	if d == "" {
		return ""
	}
	return string(d)[:1]
}

// Audio duration sentinels.
const (
	DurationUnknown = -1 // media entry not found
	DurationFailed  = -2 // entry found but could not be measured
)

// Payload is the closed set of record bodies: TextPayload or AudioPayload.
type Payload interface {
	isPayload()
}

// TextPayload carries the raw body of a text message. Text never leaves the extractor boundary.
type TextPayload struct {
	WordCount int
	Text      string
}

// AudioPayload carries the duration of a voice message in whole seconds, or a sentinel.
type AudioPayload struct {
	LengthSeconds int
}

func (TextPayload) isPayload()  {}
func (AudioPayload) isPayload() {}

// RawRecord is one parsed line or row before pseudonymization.
type RawRecord struct {
	SenderName      string
	TimestampMillis int64
	ConversationKey string
	Payload         Payload
}

// Message is a pseudonymized text message.
type Message struct {
	WordCount int    `json:"wordCount"`
	Timestamp int64  `json:"timestamp"`
	Sender    string `json:"sender"`
}

// MessageAudio is a pseudonymized voice message.
type MessageAudio struct {
	LengthSeconds int    `json:"lengthSeconds"`
	Timestamp     int64  `json:"timestamp"`
	Sender        string `json:"sender"`
}

type Conversation struct {
	DataSource            DataSource     `json:"dataSource"`
	IsGroupConversation   bool           `json:"isGroupConversation"`
	Participants          []string       `json:"participants"`
	Messages              []Message      `json:"messages"`
	MessagesAudio         []MessageAudio `json:"messagesAudio"`
	ConversationPseudonym string         `json:"conversationPseudonym"`
}

// Empty reports whether the conversation has neither text nor audio messages.
func (c Conversation) Empty() bool {
	return len(c.Messages) == 0 && len(c.MessagesAudio) == 0
}

// AnonymizationResult is the only value the pipeline hands back to callers.
type AnonymizationResult struct {
	AnonymizedConversations      []Conversation      `json:"anonymizedConversations"`
	ParticipantNamesToPseudonyms map[string]string   `json:"participantNamesToPseudonyms"`
	ChatMappingToShow            map[string][]string `json:"chatMappingToShow"`
}

// Aliases are the reserved labels substituted for real identities.
type Aliases struct {
	Donor   string `yaml:"donor" json:"donor"`
	Contact string `yaml:"contact" json:"contact"`
	System  string `yaml:"system" json:"system"`
	Chat    string `yaml:"chat" json:"chat"`
}

// SystemSender is the sender name extractors give platform notices. The NUL
// byte keeps it apart from every name a participant can have; the pipeline
// pins it to Aliases.System.
const SystemSender = "\x00system"

// DefaultAliases are the English labels used when a caller supplies none.
var DefaultAliases = Aliases{Donor: "Donor", Contact: "Contact", System: "System", Chat: "Chat"}

// File is a named byte buffer handed to an extractor.
type File struct {
	Name string
	Data []byte
}
