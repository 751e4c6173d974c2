package cursor_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/relaysched/monque/internal/cursor"
)

func TestRoundTrip(t *testing.T) {
	id := uuid.NewString()
	for _, dir := range []cursor.Direction{cursor.Forward, cursor.Backward} {
		enc, err := cursor.Encode(id, dir)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		gotID, gotDir, err := cursor.Decode(enc)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if gotID != id || gotDir != dir {
			t.Fatalf("round trip mismatch: got (%s, %c), want (%s, %c)", gotID, gotDir, id, dir)
		}
	}
}

func TestEncodeForwardPrefix(t *testing.T) {
	enc, err := cursor.Encode("507f1f77-bcf8-4cd7-9943-9011aaaaaaaa", cursor.Forward)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(enc, "F") {
		t.Fatalf("expected F prefix, got %q", enc)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []string{
		"",         // empty
		"X" + "AA", // unknown prefix
		"F***",     // malformed base64
		"F" + "AAAA", // wrong length
	}
	for _, s := range cases {
		if _, _, err := cursor.Decode(s); err == nil {
			t.Errorf("Decode(%q): expected error, got nil", s)
		}
	}
}
