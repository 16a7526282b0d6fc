// Package sentence implements the sentence streamer (C11): incoming
// text tokens are accumulated and flushed whenever a sentence boundary
// is detected, so downstream TTS synthesis can start before the full
// response has arrived. Boundary-detection style is narrowed from the
// teacher's channels.MessageChunker (paragraph → sentence → word
// fallback chain) down to the single punctuation+length rule spec.md
// §4.11 calls for.
package sentence

import (
	"strings"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

// MinSentenceLength is the minimum code-point length a sentence
// fragment must reach before a terminator is honored, avoiding splits
// on abbreviations like "Dr.".
const MinSentenceLength = 4

// Streamer accumulates text deltas and emits SentenceChunks at
// detected boundaries: a terminator (. ! ?) followed by whitespace,
// with the accumulated fragment at least MinSentenceLength code
// points. Index is assigned at detection time (spec.md §3),
// independent of downstream synthesis completion order.
type Streamer struct {
	buf          strings.Builder
	pendingBreak bool
	index        int
	onChunk      func(models.SentenceChunk)
}

// NewStreamer constructs a Streamer that calls onChunk for each
// detected sentence, in detection order.
func NewStreamer(onChunk func(models.SentenceChunk)) *Streamer {
	return &Streamer{onChunk: onChunk}
}

// Push feeds one text delta into the accumulator, emitting any
// sentences it completes.
func (s *Streamer) Push(delta string) {
	for _, r := range delta {
		if s.pendingBreak {
			s.pendingBreak = false
			if isSpace(r) && s.bufLenRunes() >= MinSentenceLength {
				s.emit()
				continue
			}
		}
		s.buf.WriteRune(r)
		if isTerminator(r) {
			s.pendingBreak = true
		}
	}
}

// Flush emits any remaining fragment regardless of length, called at
// end-of-stream.
func (s *Streamer) Flush() {
	s.pendingBreak = false
	s.emit()
}

func (s *Streamer) emit() {
	text := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if text == "" {
		return
	}
	s.onChunk(models.SentenceChunk{Index: s.index, Text: text})
	s.index++
}

func (s *Streamer) bufLenRunes() int {
	return len([]rune(s.buf.String()))
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}
