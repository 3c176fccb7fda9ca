package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pkg/errors"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/validate"
	"github.com/jo25425/dona-sub000/internal/whatsapp"
)

type Config struct {
	Aliases     AliasConfig
	Timezone    string
	WhatsApp    WhatsAppConfig
	Gate        GateConfig
	MaxParallel int
	Sink        SinkConfig
	HTTP        HTTPConfig
	Log         LogConfig
}

type AliasConfig struct {
	Locale   string
	Override core.Aliases
}

type WhatsAppConfig struct {
	MinFiles    int
	MaxFiles    int
	MinMessages int
	MinContacts int
}

type GateConfig struct {
	MinConversations int
	MinSpanDays      int
}

type SinkConfig struct {
	OutDir       string
	LedgerPath   string
	SQLiteTuning bool
}

type HTTPConfig struct {
	Addr        string
	RateRPS     int
	RateBurst   int
	CORSOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	defaultLocale           = "en"
	defaultTimezone         = "Local"
	defaultMinFiles         = 5
	defaultMaxFiles         = 7
	defaultMinMessages      = 100
	defaultMinContacts      = 2
	defaultMinConversations = 1
	defaultMaxParallel      = 4
	defaultOutDir           = "."
	defaultLedgerPath       = "dona-runs.db"
	defaultRateRPS          = 20
	defaultRateBurst        = 40
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
)

func Load() Config {
	cfg := Config{}

	cfg.Aliases.Locale = readString("DONA_ALIAS_LOCALE", defaultLocale)
	cfg.Aliases.Override = core.Aliases{
		Donor:   strings.TrimSpace(os.Getenv("DONA_DONOR_ALIAS")),
		Contact: strings.TrimSpace(os.Getenv("DONA_CONTACT_ALIAS")),
		System:  strings.TrimSpace(os.Getenv("DONA_SYSTEM_ALIAS")),
		Chat:    strings.TrimSpace(os.Getenv("DONA_CHAT_ALIAS")),
	}
	cfg.Timezone = readString("DONA_TIMEZONE", defaultTimezone)

	cfg.WhatsApp.MinFiles = readInt("DONA_WHATSAPP_MIN_FILES", defaultMinFiles)
	cfg.WhatsApp.MaxFiles = readInt("DONA_WHATSAPP_MAX_FILES", defaultMaxFiles)
	if cfg.WhatsApp.MaxFiles < cfg.WhatsApp.MinFiles {
		cfg.WhatsApp.MaxFiles = cfg.WhatsApp.MinFiles
	}
	cfg.WhatsApp.MinMessages = readCount("DONA_MIN_MESSAGES", defaultMinMessages)
	cfg.WhatsApp.MinContacts = readCount("DONA_MIN_CONTACTS", defaultMinContacts)

	cfg.Gate.MinConversations = readCount("DONA_MIN_CONVERSATIONS", defaultMinConversations)
	cfg.Gate.MinSpanDays = readCount("DONA_MIN_SPAN_DAYS", 0)

	cfg.MaxParallel = readInt("DONA_MAX_PARALLEL", defaultMaxParallel)

	cfg.Sink.OutDir = readString("DONA_OUT_DIR", defaultOutDir)
	cfg.Sink.LedgerPath = readString("DONA_LEDGER_PATH", defaultLedgerPath)
	cfg.Sink.SQLiteTuning = readBool("GN_SQLITE_TUNING", false)

	cfg.HTTP.Addr = strings.TrimSpace(os.Getenv("DONA_HTTP_ADDR"))
	cfg.HTTP.RateRPS = readInt("DONA_HTTP_RATE_RPS", defaultRateRPS)
	cfg.HTTP.RateBurst = readInt("DONA_HTTP_RATE_BURST", defaultRateBurst)
	cfg.HTTP.CORSOrigins = splitList(os.Getenv("DONA_HTTP_CORS_ORIGINS"))

	cfg.Log.Level = strings.ToLower(readString("DONA_LOG_LEVEL", defaultLogLevel))
	cfg.Log.Format = strings.ToLower(readString("DONA_LOG_FORMAT", defaultLogFormat))

	return cfg
}

// Location resolves Timezone. "Local" and "" mean the host zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "DONA_TIMEZONE %q", c.Timezone)
	}
	return loc, nil
}

// MinSpan is the gate's minimum date span.
func (c Config) MinSpan() time.Duration {
	return time.Duration(c.Gate.MinSpanDays) * 24 * time.Hour
}

// Thresholds applies the gate settings on top of the source defaults.
func (c Config) Thresholds(src core.DataSource) validate.Thresholds {
	t := validate.DefaultThresholds(src)
	t.MinConversations = c.Gate.MinConversations
	t.MinSpan = c.MinSpan()
	return t
}

// WhatsAppOptions carries the text-export bounds and time zone.
func (c Config) WhatsAppOptions() (whatsapp.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return whatsapp.Options{}, err
	}
	return whatsapp.Options{
		MinFiles:    c.WhatsApp.MinFiles,
		MaxFiles:    c.WhatsApp.MaxFiles,
		MinMessages: c.WhatsApp.MinMessages,
		MinContacts: c.WhatsApp.MinContacts,
		Location:    loc,
	}, nil
}

// LogLevel maps Log.Level onto slog, defaulting to info.
func (c Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds the slog handler Log.Format asks for.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return dedupe(out)
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(v))
	}
	sort.Strings(out)
	return out
}

func readString(name, def string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	return raw
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

// readCount is readInt that also accepts zero, which disables a threshold.
func readCount(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (c Config) Summary() Summary {
	overridden := make([]string, 0, 4)
	o := c.Aliases.Override
	for name, v := range map[string]string{"donor": o.Donor, "contact": o.Contact, "system": o.System, "chat": o.Chat} {
		if v != "" {
			overridden = append(overridden, name)
		}
	}
	sort.Strings(overridden)

	return Summary{
		Locale:           c.Aliases.Locale,
		AliasOverrides:   overridden,
		Timezone:         c.Timezone,
		WhatsAppFiles:    [2]int{c.WhatsApp.MinFiles, c.WhatsApp.MaxFiles},
		MinMessages:      c.WhatsApp.MinMessages,
		MinContacts:      c.WhatsApp.MinContacts,
		MinConversations: c.Gate.MinConversations,
		MinSpanDays:      c.Gate.MinSpanDays,
		MaxParallel:      c.MaxParallel,
		OutDir:           c.Sink.OutDir,
		LedgerPath:       c.Sink.LedgerPath,
		SQLiteTuning:     c.Sink.SQLiteTuning,
		HTTP: HTTPSummary{
			Enabled:     c.HTTP.Addr != "",
			Addr:        c.HTTP.Addr,
			RateRPS:     c.HTTP.RateRPS,
			RateBurst:   c.HTTP.RateBurst,
			CORSOrigins: len(c.HTTP.CORSOrigins),
		},
	}
}

type Summary struct {
	Locale           string      `json:"locale"`
	AliasOverrides   []string    `json:"alias_overrides,omitempty"`
	Timezone         string      `json:"timezone"`
	WhatsAppFiles    [2]int      `json:"whatsapp_files"`
	MinMessages      int         `json:"min_messages"`
	MinContacts      int         `json:"min_contacts"`
	MinConversations int         `json:"min_conversations"`
	MinSpanDays      int         `json:"min_span_days"`
	MaxParallel      int         `json:"max_parallel"`
	OutDir           string      `json:"out_dir"`
	LedgerPath       string      `json:"ledger_path"`
	SQLiteTuning     bool        `json:"sqlite_tuning"`
	HTTP             HTTPSummary `json:"http"`
}

type HTTPSummary struct {
	Enabled     bool   `json:"enabled"`
	Addr        string `json:"addr,omitempty"`
	RateRPS     int    `json:"rate_rps"`
	RateBurst   int    `json:"rate_burst"`
	CORSOrigins int    `json:"cors_origins"`
}

func (c Config) SummaryJSON() []byte {
	summary := struct {
		Config Summary `json:"config_summary"`
	}{Config: c.Summary()}
	data, _ := json.Marshal(summary)
	return data
}
