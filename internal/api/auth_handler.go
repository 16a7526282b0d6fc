package api

import (
	"encoding/json"
	"net/http"

	"github.com/jarvis-homelab/jarvis/internal/auth"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// handleLogin exchanges the shared operator password for a bearer JWT
// (spec.md §6: single role, 7-day expiry).
func (d Deps) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Auth == nil || !d.Auth.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := d.Auth.Login(req.Password)
	if err != nil {
		switch err {
		case auth.ErrWrongPassword:
			writeError(w, http.StatusUnauthorized, "wrong password")
		default:
			writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}
