package fakes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// Response is a scripted reply of the fake issuance API.
type Response struct {
	Status int
	Body   any
	Delay  time.Duration
}

// Recorded is one request received by the fake.
type Recorded struct {
	Path   string
	Header http.Header
	Body   map[string]any
}

// Hyphen is an httptest server that speaks the issuance API's wire format.
// Unscripted paths answer {"code":"0000"} with a data object echoing the path.
type Hyphen struct {
	Server *httptest.Server

	Token      string
	ExpiresIn  int
	TokenDelay time.Duration
	// TokenStatus, when non-zero, is returned instead of a token.
	TokenStatus int
	// RequireBearer rejects calls without the current token on these paths.
	RequireBearer map[string]bool

	tokenCalls atomic.Int32

	mu        sync.Mutex
	responses map[string]Response
	requests  []Recorded
}

func NewHyphen(t testing.TB) *Hyphen {
	t.Helper()
	h := &Hyphen{
		Token:     "tok-1",
		ExpiresIn: 3600,
		responses: make(map[string]Response),
	}
	r := chi.NewRouter()
	r.Post("/oauth/token", h.handleToken)
	r.Post("/*", h.handleCall)
	h.Server = httptest.NewServer(r)
	t.Cleanup(h.Server.Close)
	return h
}

func (h *Hyphen) URL() string { return h.Server.URL }

// Script sets the reply for path.
func (h *Hyphen) Script(path string, resp Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses[path] = resp
}

// TokenCalls is the number of token endpoint requests served.
func (h *Hyphen) TokenCalls() int { return int(h.tokenCalls.Load()) }

// Requests returns the recorded calls, excluding token requests.
func (h *Hyphen) Requests() []Recorded {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Recorded(nil), h.requests...)
}

// Last returns the most recent recorded call.
func (h *Hyphen) Last() (Recorded, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return Recorded{}, false
	}
	return h.requests[len(h.requests)-1], true
}

func (h *Hyphen) handleToken(w http.ResponseWriter, r *http.Request) {
	h.tokenCalls.Add(1)
	if !sleep(r, h.TokenDelay) {
		return
	}
	if h.TokenStatus != 0 {
		writeJSON(w, h.TokenStatus, map[string]string{"error": "invalid_client"})
		return
	}
	var in struct {
		UserID string `json:"user_id"`
		HKey   string `json:"hkey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.UserID == "" || in.HKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": h.Token, "expires_in": h.ExpiresIn})
}

func (h *Hyphen) handleCall(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	h.mu.Lock()
	h.requests = append(h.requests, Recorded{Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
	resp, scripted := h.responses[r.URL.Path]
	h.mu.Unlock()

	if h.RequireBearer[r.URL.Path] && r.Header.Get("Authorization") != "Bearer "+h.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "401", "message": "invalid token"})
		return
	}
	if !scripted {
		writeJSON(w, http.StatusOK, map[string]any{
			"code":    "0000",
			"message": "정상처리",
			"data":    map[string]any{"path": r.URL.Path},
		})
		return
	}
	if !sleep(r, resp.Delay) {
		return
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if s, ok := resp.Body.(string); ok {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(s))
		return
	}
	writeJSON(w, status, resp.Body)
}

func sleep(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
