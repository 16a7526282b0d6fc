package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranscriber_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart form: %v", err)
		}
		if r.FormValue("model") != "whisper-1" {
			t.Errorf("expected model field whisper-1, got %q", r.FormValue("model"))
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("read file field: %v", err)
		}
		file.Close()
		w.Write([]byte("restart the vm on node two"))
	}))
	defer srv.Close()

	tr, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := tr.Transcribe(context.Background(), strings.NewReader("fake-audio-bytes"), "audio/wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "restart the vm on node two" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestTranscriber_EmptyAudioIsRejected(t *testing.T) {
	tr, err := New(Config{BaseURL: "http://unused.invalid"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = tr.Transcribe(context.Background(), strings.NewReader(""), "audio/wav")
	if err == nil {
		t.Fatalf("expected error for empty audio")
	}
}

func TestTranscriber_APIErrorIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("engine unavailable"))
	}))
	defer srv.Close()

	tr, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = tr.Transcribe(context.Background(), strings.NewReader("fake-audio-bytes"), "audio/wav")
	if err == nil {
		t.Fatalf("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "engine unavailable") {
		t.Fatalf("expected error to surface API response body, got: %v", err)
	}
}
