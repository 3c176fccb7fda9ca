package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jo25425/dona-sub000/internal/core"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Order represents the chronological order to use when listing runs.
type Order string

const (
	// OrderDesc returns runs newest first.
	OrderDesc Order = "desc"
	// OrderAsc returns runs oldest first.
	OrderAsc Order = "asc"
)

// Filters captures the parsed query parameters for run lookups.
type Filters struct {
	Sources []core.DataSource
	Outcome string
	Reasons []string
	Since   *time.Time
	Limit   int
	Order   Order
}

// ParseFilters parses query parameters into a Filters struct.
func ParseFilters(values url.Values) (Filters, error) {
	f := Filters{
		Limit: defaultLimit,
		Order: OrderDesc,
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Filters{}, errors.New("limit must be a positive integer")
		}
		if n > maxLimit {
			n = maxLimit
		}
		f.Limit = n
	}

	if raw := values.Get("order"); raw != "" {
		switch strings.ToLower(raw) {
		case "desc":
			f.Order = OrderDesc
		case "asc":
			f.Order = OrderAsc
		default:
			return Filters{}, errors.New("order must be asc or desc")
		}
	}

	if raw := values.Get("outcome"); raw != "" {
		switch strings.ToLower(raw) {
		case core.OutcomeOK, core.OutcomeFailed:
			f.Outcome = strings.ToLower(raw)
		default:
			return Filters{}, errors.New("outcome must be ok or failed")
		}
	}

	if rawSince := values.Get("since"); rawSince != "" {
		parsed, err := parseSince(rawSince)
		if err != nil {
			return Filters{}, err
		}
		f.Since = &parsed
	}

	if sources := values["source"]; len(sources) > 0 {
		seen := make(map[core.DataSource]struct{})
		var out []core.DataSource
		var allowAll bool
		for _, raw := range sources {
			for _, part := range strings.Split(raw, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				if part == "all" || part == "*" {
					allowAll = true
					out = nil
					continue
				}
				canonical, ok := core.ParseDataSource(part)
				if !ok {
					return Filters{}, errors.New("invalid source filter")
				}
				if _, exists := seen[canonical]; !exists && !allowAll {
					out = append(out, canonical)
					seen[canonical] = struct{}{}
				}
			}
		}
		if !allowAll {
			f.Sources = out
		}
	}

	for _, raw := range values["reason"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.Reasons = append(f.Reasons, part)
			}
		}
	}

	return f, nil
}

// FiltersFromRequest parses filters from an HTTP request.
func FiltersFromRequest(r *http.Request) (Filters, error) {
	return ParseFilters(r.URL.Query())
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d).UTC(), nil
	}
	return time.Time{}, errors.New("invalid since parameter")
}

// Matches reports whether the provided run satisfies the filters.
func (f Filters) Matches(run core.RunRecord) bool {
	if len(f.Sources) > 0 {
		match := false
		for _, s := range f.Sources {
			if run.Source == s {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if f.Outcome != "" && run.Outcome != f.Outcome {
		return false
	}

	if len(f.Reasons) > 0 {
		match := false
		for _, r := range f.Reasons {
			if strings.EqualFold(run.Reason, r) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if f.Since != nil {
		if run.StartedAt.Before(f.Since.UTC()) {
			return false
		}
	}

	return true
}
