package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"shelfscan/internal/bridge"
	"shelfscan/internal/imaging"
	"shelfscan/internal/ipc"
	"shelfscan/internal/logging"
	"shelfscan/internal/scan"
)

const mjpegBoundary = "frame"

// liveViewServer serves the annotated camera stream and read-only state over
// HTTP for the operator's browser.
type liveViewServer struct {
	bind    string
	quality int
	logger  *slog.Logger
	backend ipc.Backend

	listener net.Listener
	server   *http.Server
	url      atomic.Value
}

// scanPayload is the /api/scan response.
type scanPayload struct {
	RunID string      `json:"run_id"`
	Seq   uint64      `json:"seq"`
	Event *scan.Event `json:"event,omitempty"`
}

// defaultFollowWait bounds an /api/logs?follow=1 request that names no wait.
const defaultFollowWait = 10 * time.Second

type logsPayload struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

func newLiveViewServer(bind string, quality int, backend ipc.Backend, logger *slog.Logger) *liveViewServer {
	bind = strings.TrimSpace(bind)
	if bind == "" || backend == nil {
		return nil
	}
	if quality <= 0 {
		quality = imaging.DefaultJPEGQuality
	}
	s := &liveViewServer{
		bind:    bind,
		quality: quality,
		logger:  logging.NewComponentLogger(logger, "live-view"),
		backend: backend,
	}
	s.server = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *liveViewServer) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/video_feed", s.handleVideoFeed).Methods("GET")
	r.HandleFunc("/api/frame", s.handleFrame).Methods("GET")
	r.HandleFunc("/api/scan", s.handleScan).Methods("GET")
	r.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/logs", s.handleLogs).Methods("GET")
	return r
}

func (s *liveViewServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("live view listen: %w", err)
	}
	s.listener = listener
	s.url.Store("http://" + listener.Addr().String() + "/video_feed")
	// request contexts end with the daemon so open streams do not stall Shutdown
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("live view server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("live view listening",
		logging.String(logging.FieldEventType, "live_view_started"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

func (s *liveViewServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// URL returns the browser address, or "" before start.
func (s *liveViewServer) URL() string {
	if s == nil {
		return ""
	}
	url, _ := s.url.Load().(string)
	return url
}

func (s *liveViewServer) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// the stream outlives the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)

	slot := s.backend.Hub().Annotated()
	var since uint64
	for {
		v, err := slot.Wait(r.Context(), since)
		if err != nil {
			return
		}
		since = v.Seq
		data, err := imaging.EncodeJPEG(v.Value.Image, s.quality)
		if err != nil {
			s.logger.Debug("live view frame encode failed", logging.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(data)); err != nil {
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *liveViewServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	annotated := parseBool(r.URL.Query().Get("annotated"))
	v, err := s.backend.Hub().LatestFrame(annotated)
	if err != nil {
		if errors.Is(err, bridge.ErrNoFrame) {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	data, err := imaging.EncodeJPEG(v.Value.Image, s.quality)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(v.Seq, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *liveViewServer) handleScan(w http.ResponseWriter, _ *http.Request) {
	hub := s.backend.Hub()
	payload := scanPayload{RunID: hub.RunID()}
	if v, ok := hub.Events().Load(); ok {
		payload.Seq = v.Seq
		evt := v.Value
		payload.Event = &evt
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *liveViewServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *liveViewServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.backend.Logs()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, logsPayload{})
		return
	}
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := parseBool(query.Get("follow"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		ctx := r.Context()
		if follow {
			wait := followWait(query.Get("wait"))
			_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(wait + 5*time.Second))
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, wait)
			defer cancel()
		}
		var err error
		events, next, err = hub.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusOK, logsPayload{Events: events, Next: next})
}

// followWait parses the wait query value in milliseconds, bounded by ipc.MaxWait.
func followWait(raw string) time.Duration {
	millis, _ := strconv.Atoi(strings.TrimSpace(raw))
	wait := time.Duration(millis) * time.Millisecond
	if wait <= 0 {
		wait = defaultFollowWait
	}
	return min(wait, ipc.MaxWait)
}

func (s *liveViewServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *liveViewServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func parseBool(value string) bool {
	value = strings.TrimSpace(value)
	return value == "1" || strings.EqualFold(value, "true")
}
