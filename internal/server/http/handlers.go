package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rzbill/notiq/internal/notify"
	"github.com/rzbill/notiq/internal/runtime"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rt.Stats())
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	ns := r.URL.Query().Get("namespace")
	chans, err := s.rt.Channels(ns)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": chans})
}

type notifyReq struct {
	Namespace string `json:"namespace"`
	Channel   string `json:"channel"`
	Payload   string `json:"payload"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pub, err := s.getPublisher(req.Namespace)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.pubMu.Lock()
	err = pub.Notify(req.Channel, req.Payload)
	s.pubMu.Unlock()
	if err != nil {
		var verr *notify.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, notify.ErrQueueFull):
			writeError(w, http.StatusTooManyRequests, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// getPublisher returns the shared notifying connection for a namespace,
// attaching it on first use. A notify-only connection never listens, so it
// holds no worker slot between requests.
func (s *Server) getPublisher(ns string) (*runtime.Conn, error) {
	if ns == "" {
		ns = s.rt.Config().DefaultNamespaceName
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.publishers == nil {
		s.publishers = make(map[string]*runtime.Conn)
	}
	if c, ok := s.publishers[ns]; ok {
		return c, nil
	}
	c, err := s.rt.Attach(ns, discardSink{})
	if err != nil {
		return nil, err
	}
	s.publishers[ns] = c
	return c, nil
}

// discardSink backs connections that only ever notify.
type discardSink struct{}

func (discardSink) Deliver(string, string, notify.WorkerID) error { return nil }
