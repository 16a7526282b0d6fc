package api

import (
	"net/http"
	"strings"
)

// handleCameraSnapshot serves GET /api/cameras/:camera/snapshot, a binary
// proxy to Frigate (spec.md §6).
func (d Deps) handleCameraSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Frigate == nil {
		writeError(w, http.StatusServiceUnavailable, "camera NVR not configured")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/cameras/")
	camera := strings.TrimSuffix(path, "/snapshot")
	if camera == "" || camera == path {
		writeError(w, http.StatusNotFound, "unknown camera route")
		return
	}

	blob, err := d.Frigate.CameraSnapshot(r.Context(), camera)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeBlob(w, blob.ContentType, blob.Data)
}

// handleNVREventMedia serves GET /api/events/:id/thumbnail and
// GET /api/events/:id/snapshot.
func (d Deps) handleNVREventMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Frigate == nil {
		writeError(w, http.StatusServiceUnavailable, "camera NVR not configured")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/events/")
	switch {
	case strings.HasSuffix(path, "/thumbnail"):
		id := strings.TrimSuffix(path, "/thumbnail")
		blob, err := d.Frigate.EventThumbnail(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeBlob(w, blob.ContentType, blob.Data)
	case strings.HasSuffix(path, "/snapshot"):
		id := strings.TrimSuffix(path, "/snapshot")
		blob, err := d.Frigate.EventSnapshot(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeBlob(w, blob.ContentType, blob.Data)
	default:
		writeError(w, http.StatusNotFound, "unknown event media route")
	}
}

// handleListNVREvents serves GET /api/events, forwarding the raw query
// string to Frigate's own events endpoint.
func (d Deps) handleListNVREvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Frigate == nil {
		writeError(w, http.StatusServiceUnavailable, "camera NVR not configured")
		return
	}
	events, err := d.Frigate.ListEvents(r.Context(), r.URL.RawQuery)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func writeBlob(w http.ResponseWriter, contentType string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
