// Package pseudonym replaces participant and chat identities with stable
// labels for the lifetime of one pipeline run. Registries are not safe for
// concurrent use.
package pseudonym

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/jo25425/dona-sub000/internal/textrepair"
)

// ErrTaken is returned when pinning a pseudonym that another name already holds.
var ErrTaken = errors.New("pseudonym already assigned")

// Registry maps decoded participant names to pseudonyms and back.
type Registry struct {
	contactAlias string

	byName  map[string]string
	byAlias map[string]string
	pinned  map[string]struct{}
	counter int
}

func NewRegistry(contactAlias string) *Registry {
	return &Registry{
		contactAlias: contactAlias,
		byName:       make(map[string]string),
		byAlias:      make(map[string]string),
		pinned:       make(map[string]struct{}),
		counter:      1,
	}
}

// Pseudonym returns the pseudonym for name, assigning the next
// "{contactAlias}{n}" on first sight.
func (r *Registry) Pseudonym(name string) string {
	decoded := textrepair.Decode(name)
	if p, ok := r.byName[decoded]; ok {
		return p
	}

	p := r.next()
	r.byName[decoded] = p
	r.byAlias[p] = decoded
	return p
}

// Set pins name to a fixed pseudonym, bypassing the counter. Pinned
// pseudonyms have no reverse entry, so OriginalNames skips them.
func (r *Registry) Set(name, pseudonym string) error {
	decoded := textrepair.Decode(name)
	for other, p := range r.byName {
		if p == pseudonym && other != decoded {
			return errors.Wrapf(ErrTaken, "pin %q", pseudonym)
		}
	}
	if prev, ok := r.byName[decoded]; ok && prev != pseudonym {
		delete(r.byAlias, prev)
	}
	r.byName[decoded] = pseudonym
	r.pinned[pseudonym] = struct{}{}
	return nil
}

// Original returns the decoded name behind a counter-assigned pseudonym.
func (r *Registry) Original(pseudonym string) (string, bool) {
	name, ok := r.byAlias[pseudonym]
	return name, ok
}

// OriginalNames maps pseudonyms back to decoded names, dropping any without one.
func (r *Registry) OriginalNames(pseudonyms []string) []string {
	out := make([]string, 0, len(pseudonyms))
	for _, p := range pseudonyms {
		if name, ok := r.byAlias[p]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Has reports whether pseudonym was issued by this registry.
func (r *Registry) Has(pseudonym string) bool {
	if _, ok := r.byAlias[pseudonym]; ok {
		return true
	}
	_, ok := r.pinned[pseudonym]
	return ok
}

// Map returns a copy of the name to pseudonym table.
func (r *Registry) Map() map[string]string {
	out := make(map[string]string, len(r.byName))
	for name, p := range r.byName {
		out[name] = p
	}
	return out
}

// Len is the number of distinct names registered.
func (r *Registry) Len() int { return len(r.byName) }

func (r *Registry) next() string {
	for {
		p := r.contactAlias + strconv.Itoa(r.counter)
		r.counter++
		if _, taken := r.pinned[p]; taken {
			continue
		}
		if _, taken := r.byAlias[p]; taken {
			continue
		}
		return p
	}
}
