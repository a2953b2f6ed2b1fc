// Package httpapi exposes the controller over HTTP: JSON endpoints for
// transport and parameters, and a Server-Sent Events feed of playback
// events.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/satindergrewal/abmix/internal/controller"
	"github.com/satindergrewal/abmix/internal/events"
	"github.com/satindergrewal/abmix/internal/params"
)

// Control is the part of *controller.Controller the API drives.
type Control interface {
	Play() error
	Pause() error
	Stop() error
	Seek(p float64) error
	UpdateParams(p params.Patch) (params.Set, error)
	Status() controller.Status
	Params() *params.Store
	Events() *events.Broadcaster
}

// Handler routes /api/* requests to a Control.
type Handler struct {
	ctl Control
	mux *http.ServeMux
}

// New returns the API handler.
func New(ctl Control) *Handler {
	h := &Handler{ctl: ctl, mux: http.NewServeMux()}
	h.mux.HandleFunc("/api/status", h.status)
	h.mux.HandleFunc("/api/params", h.params)
	h.mux.HandleFunc("/api/play", h.command(ctl.Play))
	h.mux.HandleFunc("/api/pause", h.command(ctl.Pause))
	h.mux.HandleFunc("/api/stop", h.command(ctl.Stop))
	h.mux.HandleFunc("/api/seek", h.seek)
	h.mux.HandleFunc("/api/events", h.events)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	h.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps controller errors to status codes. A missing backend is
// a conflict, anything the backend reports is a bad gateway.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	if errors.Is(err, controller.ErrNoActiveBackend) {
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]any{"ok": false, "error": err.Error()})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET required", http.StatusMethodNotAllowed)
		return
	}
	st := h.ctl.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":       st.Mode,
		"session_id": st.SessionID,
		"backend":    st.Backend,
		"connected":  st.Connected,
		"playing":    st.Playing,
		"seeking":    st.Seeking,
		"position":   st.Position,
		"seconds":    st.Position * st.Duration.Seconds(),
		"duration":   st.Duration.Seconds(),
		"listeners":  h.ctl.Events().ListenerCount(),
		"params":     h.ctl.Params().Snapshot(),
	})
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.ctl.Params().Snapshot())
	case http.MethodPost, http.MethodPatch:
		var patch params.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "invalid parameters", http.StatusBadRequest)
			return
		}
		if patch.Empty() {
			http.Error(w, "no parameters given", http.StatusBadRequest)
			return
		}
		set, err := h.ctl.UpdateParams(patch)
		resp := map[string]any{"ok": true, "sent": err == nil, "params": set}
		if err != nil && !errors.Is(err, controller.ErrNoActiveBackend) {
			resp["ok"] = false
			resp["error"] = err.Error()
			writeJSON(w, http.StatusBadGateway, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) command(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := fn(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (h *Handler) seek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Position *float64 `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position == nil {
		http.Error(w, "position required", http.StatusBadRequest)
		return
	}
	if err := h.ctl.Seek(*req.Position); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// events streams playback events until the client goes away.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	b := h.ctl.Events()
	listener := b.Subscribe()
	defer b.Unsubscribe(listener)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	log.Printf("httpapi: event listener connected (total: %d)", b.ListenerCount())
	defer log.Printf("httpapi: event listener disconnected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.Done():
			return
		case ev := <-listener.C:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
