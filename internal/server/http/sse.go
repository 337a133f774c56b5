package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rzbill/notiq/internal/notify"
	logpkg "github.com/rzbill/notiq/pkg/log"
)

// sseSink delivers notifications as Server-Sent Events. Each notification
// becomes one "data:" frame, JSON-encoded and flushed immediately.
type sseSink struct {
	w http.ResponseWriter
	f http.Flusher
}

type sseEvent struct {
	Channel string `json:"channel"`
	Payload string `json:"payload"`
	Sender  int32  `json:"sender"`
}

func (s sseSink) Deliver(channel, payload string, sender notify.WorkerID) error {
	b, err := json.Marshal(sseEvent{Channel: channel, Payload: payload, Sender: int32(sender)})
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	if s.f != nil {
		s.f.Flush()
	}
	return nil
}

// handleListenSSE subscribes the request to the given channels and streams
// notifications until the client goes away. The subscription lives exactly
// as long as the request: connection-scoped, like the engine's sessions.
func (s *Server) handleListenSSE(w http.ResponseWriter, r *http.Request) {
	ns := r.URL.Query().Get("namespace")
	var channels []string
	for _, ch := range strings.Split(r.URL.Query().Get("channels"), ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one channel is required"))
		return
	}

	flusher, _ := w.(http.Flusher)
	conn, err := s.rt.Attach(ns, sseSink{w: w, f: flusher})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer conn.Close()

	if err := conn.Listen(channels...); err != nil {
		var verr *notify.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	err = conn.Serve(r.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("listen stream ended",
			logpkg.Str("conn", conn.ID()),
			logpkg.Err(err),
		)
	}
}
