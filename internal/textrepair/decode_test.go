package textrepair

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestDecodeRepairsLatin1Mojibake(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Ã©tÃ©", "été"},
		{"MÃ¼ller", "Müller"},
		{`JÃ¶rg`, "Jörg"},
		{"café", "café"},
		{`caf\u00c3\u00a9`, "café"},
		{`\u0041BC`, "ABC"},
		{"plain ascii", "plain ascii"},
		{"", ""},
		{"already ok: ü and ß", "already ok: ü and ß"},
	}
	for _, tc := range cases {
		if got := Decode(tc.in); got != tc.want {
			t.Errorf("Decode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodeFallsBackOnInvalidBytes(t *testing.T) {
	// Ã followed by a continuation-range code point, then a lone lead byte.
	in := "Ã\u0080Ã"
	if got := Decode(in); got != in {
		t.Fatalf("expected best-effort passthrough, got %q", got)
	}

	// A code point above U+00FF cannot be re-encoded as Latin-1.
	mixed := "Ã© ☃"
	if got := Decode(mixed); got != mixed {
		t.Fatalf("expected passthrough for unencodable text, got %q", got)
	}
}

func TestDecodeIdempotentWithoutSignature(t *testing.T) {
	inputs := []string{"hello", "Grüße", "日本語", "emoji 🎉", "été"}
	for _, in := range inputs {
		once := Decode(in)
		if twice := Decode(once); twice != once {
			t.Errorf("decode not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestStringFromGJSON(t *testing.T) {
	res := gjson.Get(`{"name":"RenÃ©"}`, "name")
	if got := String(res); got != "René" {
		t.Fatalf("unexpected decoded name %q", got)
	}
}
