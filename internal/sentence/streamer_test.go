package sentence

import (
	"testing"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

func collect(t *testing.T, pushes ...string) []models.SentenceChunk {
	t.Helper()
	var got []models.SentenceChunk
	s := NewStreamer(func(c models.SentenceChunk) { got = append(got, c) })
	for _, p := range pushes {
		s.Push(p)
	}
	s.Flush()
	return got
}

func TestStreamer_SplitsOnTwoShortSentences(t *testing.T) {
	got := collect(t, "Yes. Okay.")
	want := []string{"Yes.", "Okay."}
	if len(got) != len(want) {
		t.Fatalf("got %d chunks, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("chunk %d = %q, want %q", i, got[i].Text, w)
		}
		if got[i].Index != i {
			t.Errorf("chunk %d has index %d, want %d", i, got[i].Index, i)
		}
	}
}

func TestStreamer_DoesNotSplitOnAbbreviation(t *testing.T) {
	got := collect(t, "Dr. Strange is here.")
	if len(got) != 1 {
		t.Fatalf("expected a single sentence (no split on \"Dr.\"), got %d: %+v", len(got), got)
	}
	if got[0].Text != "Dr. Strange is here." {
		t.Fatalf("unexpected sentence text: %q", got[0].Text)
	}
}

func TestStreamer_FlushEmitsTrailingFragmentRegardlessOfLength(t *testing.T) {
	got := collect(t, "Hi")
	if len(got) != 1 || got[0].Text != "Hi" {
		t.Fatalf("expected flush to emit short trailing fragment, got %+v", got)
	}
}

func TestStreamer_IndexIsMonotonicAcrossMultiplePushes(t *testing.T) {
	got := collect(t, "First sentence. ", "Second sentence. ", "Third.")
	if len(got) != 3 {
		t.Fatalf("expected 3 sentences, got %d: %+v", len(got), got)
	}
	for i, c := range got {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d, want monotonic %d", i, c.Index, i)
		}
	}
}
