package pseudonym

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jo25425/dona-sub000/internal/core"
)

func TestPseudonymStableAndDistinct(t *testing.T) {
	r := NewRegistry("Contact")
	a := r.Pseudonym("Alice")
	b := r.Pseudonym("Bob")
	if a != "Contact1" || b != "Contact2" {
		t.Fatalf("unexpected pseudonyms %q %q", a, b)
	}
	if again := r.Pseudonym("Alice"); again != a {
		t.Fatalf("expected stable pseudonym, got %q then %q", a, again)
	}
}

func TestPseudonymBijection(t *testing.T) {
	r := NewRegistry("Contact")
	seen := make(map[string]string)
	for i := 0; i < 200; i++ {
		name := fmt.Sprintf("Person %d", i)
		p := r.Pseudonym(name)
		if prev, ok := seen[p]; ok && prev != name {
			t.Fatalf("pseudonym %q issued to %q and %q", p, prev, name)
		}
		seen[p] = name
		if got := r.Pseudonym(name); got != p {
			t.Fatalf("pseudonym changed for %q", name)
		}
	}
}

func TestPseudonymUsesDecodedName(t *testing.T) {
	r := NewRegistry("Contact")
	broken := r.Pseudonym("RenÃ©")
	fixed := r.Pseudonym("René")
	if broken != fixed {
		t.Fatalf("mis-encoded and repaired name should share a pseudonym: %q vs %q", broken, fixed)
	}
	if name, _ := r.Original(fixed); name != "René" {
		t.Fatalf("expected decoded original, got %q", name)
	}
}

func TestNameEqualToSystemAliasIsAContact(t *testing.T) {
	r := NewRegistry("Contact")
	if err := r.Set(core.SystemSender, "System"); err != nil {
		t.Fatalf("pin system: %v", err)
	}
	if got := r.Pseudonym(core.SystemSender); got != "System" {
		t.Fatalf("expected system alias for notices, got %q", got)
	}
	if got := r.Pseudonym("System"); got != "Contact1" {
		t.Fatalf("a participant named System should get a contact pseudonym, got %q", got)
	}
	if name, ok := r.Original("Contact1"); !ok || name != "System" {
		t.Fatalf("expected reverse entry for the participant, got %q %v", name, ok)
	}
}

func TestSetPinsWithoutReverseEntry(t *testing.T) {
	r := NewRegistry("Contact")
	if err := r.Set("Alice", "Donor"); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if got := r.Pseudonym("Alice"); got != "Donor" {
		t.Fatalf("expected pinned pseudonym, got %q", got)
	}
	if !r.Has("Donor") {
		t.Fatalf("pinned pseudonym should count as issued")
	}
	bob := r.Pseudonym("Bob")
	names := r.OriginalNames([]string{"Donor", bob, "Nobody"})
	if len(names) != 1 || names[0] != "Bob" {
		t.Fatalf("expected only Bob, got %v", names)
	}
}

func TestSetRejectsTakenPseudonym(t *testing.T) {
	r := NewRegistry("Contact")
	r.Pseudonym("Alice")
	err := r.Set("Bob", "Contact1")
	if !errors.Is(err, ErrTaken) {
		t.Fatalf("expected ErrTaken, got %v", err)
	}
}

func TestCounterSkipsPinnedLabels(t *testing.T) {
	r := NewRegistry("Contact")
	if err := r.Set("Alice", "Contact1"); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if got := r.Pseudonym("Bob"); got != "Contact2" {
		t.Fatalf("expected counter to skip pinned label, got %q", got)
	}
}

func TestMapIsCopy(t *testing.T) {
	r := NewRegistry("Contact")
	r.Pseudonym("Alice")
	m := r.Map()
	m["Mallory"] = "Contact9"
	if r.Len() != 1 {
		t.Fatalf("mutating the copy should not touch the registry")
	}
}
