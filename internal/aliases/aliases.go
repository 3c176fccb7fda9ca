// Package aliases resolves the reserved donor, contact, system and chat
// labels for a locale.
package aliases

import (
	_ "embed"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"

	"github.com/jo25425/dona-sub000/internal/core"
)

//go:embed aliases.yaml
var tablesYAML []byte

// Fallback is the locale used when nothing else matches.
const Fallback = "en"

// Table holds the alias sets for every known locale.
type Table struct {
	byLocale map[string]core.Aliases
	tags     []language.Tag
	matcher  language.Matcher
}

// Default parses the embedded tables.
func Default() (*Table, error) {
	return Parse(tablesYAML)
}

// Parse builds a Table from YAML keyed by BCP 47 locale.
func Parse(data []byte) (*Table, error) {
	raw := map[string]core.Aliases{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse alias tables")
	}
	if _, ok := raw[Fallback]; !ok {
		return nil, errors.Errorf("alias tables lack fallback locale %q", Fallback)
	}

	locales := make([]string, 0, len(raw))
	for loc, a := range raw {
		if a.Donor == "" || a.Contact == "" || a.System == "" || a.Chat == "" {
			return nil, errors.Errorf("alias table %q is incomplete", loc)
		}
		if _, err := language.Parse(loc); err != nil {
			return nil, errors.Wrapf(err, "alias locale %q", loc)
		}
		locales = append(locales, loc)
	}
	// The matcher prefers its first tag on a tie, so the fallback goes first.
	sort.Slice(locales, func(i, j int) bool {
		if locales[i] == Fallback || locales[j] == Fallback {
			return locales[i] == Fallback
		}
		return locales[i] < locales[j]
	})

	t := &Table{byLocale: make(map[string]core.Aliases, len(raw))}
	for _, loc := range locales {
		tag := language.MustParse(loc)
		t.tags = append(t.tags, tag)
		t.byLocale[tag.String()] = raw[loc]
	}
	t.matcher = language.NewMatcher(t.tags)
	return t, nil
}

// Locales lists the known locales, fallback first.
func (t *Table) Locales() []string {
	out := make([]string, 0, len(t.tags))
	for _, tag := range t.tags {
		out = append(out, tag.String())
	}
	return out
}

// Lookup returns the aliases for the best match of locale, which may be a
// tag such as "de-AT" or an Accept-Language style list.
func (t *Table) Lookup(locale string) (core.Aliases, string) {
	prefs, _, err := language.ParseAcceptLanguage(strings.TrimSpace(locale))
	if err != nil || len(prefs) == 0 {
		return t.byLocale[Fallback], Fallback
	}
	_, idx, _ := t.matcher.Match(prefs...)
	tag := t.tags[idx]
	return t.byLocale[tag.String()], tag.String()
}

// Override replaces any non-empty field of base with the matching field of o.
func Override(base, o core.Aliases) core.Aliases {
	if o.Donor != "" {
		base.Donor = o.Donor
	}
	if o.Contact != "" {
		base.Contact = o.Contact
	}
	if o.System != "" {
		base.System = o.System
	}
	if o.Chat != "" {
		base.Chat = o.Chat
	}
	return base
}
