package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Messages sent when a session cannot start.
const (
	msgWebcamNotFound       = "Webcam not found"
	msgDetectorUnavailable  = "Hand detector unavailable"
	reasonCameraUnavailable = "camera_unavailable"
	reasonDetectorFailed    = "detector_unavailable"
)

// Inbound control message types.
const controlSetFilter = "SET_FILTER"

const (
	maxControlMessage = 4096
	writeTimeout      = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// controlMessage is a client request such as {"type":"SET_FILTER","value":false}.
type controlMessage struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// wsConn adapts a websocket to session.Publisher and session.Prober.
//
// The loop goroutine is the only data writer. readPump is the only reader.
// Ping frames go through WriteControl, which is safe alongside both.
type wsConn struct {
	ws          *websocket.Conn
	pingTimeout time.Duration
	logger      *zap.SugaredLogger

	closed    chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, pingTimeout time.Duration, logger *zap.SugaredLogger) *wsConn {
	return &wsConn{
		ws:          ws,
		pingTimeout: pingTimeout,
		logger:      logger,
		closed:      make(chan struct{}),
	}
}

// Publish writes u as one JSON text message.
func (c *wsConn) Publish(ctx context.Context, u session.Update) error {
	if c.isClosed() {
		return session.ErrConsumerClosed
	}

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.markClosed()
		return fmt.Errorf("%w: %v", session.ErrConsumerClosed, err)
	}
	return nil
}

// Probe pings the client and fails once the connection is known closed.
func (c *wsConn) Probe(ctx context.Context) error {
	if c.isClosed() {
		return session.ErrConsumerClosed
	}

	deadline := time.Now().Add(c.pingTimeout)
	if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		c.markClosed()
		return fmt.Errorf("%w: ping: %v", session.ErrConsumerClosed, err)
	}
	return nil
}

// sendJSON writes v outside the loop; used before a loop exists.
func (c *wsConn) sendJSON(v any) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// readPump consumes control messages until the client goes away.
func (c *wsConn) readPump(onControl func(controlMessage)) {
	defer c.markClosed()

	c.ws.SetReadLimit(maxControlMessage)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debugw("read failed", "error", err)
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debugw("ignoring malformed control message", "error", err)
			continue
		}
		onControl(msg)
	}
}

// close sends a normal close frame and releases the connection.
func (c *wsConn) close() error {
	c.markClosed()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.pingTimeout))
	return c.ws.Close()
}

func (c *wsConn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *wsConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// TrackingHandler runs one tracking session per websocket connection.
type TrackingHandler struct {
	srv *Server
}

// ServeHTTP upgrades the connection and blocks until the session ends and its
// history record is written. Server.Close waits for every running call.
func (h *TrackingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.srv.beginSession() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.srv.sessions.Done()

	cfg := h.srv.config
	log := h.srv.logger

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := cfg.Registry.Open(r.RemoteAddr)
	defer cfg.Registry.Remove(sess.ID)

	log = log.With("session", sess.ID.String(), "remote", r.RemoteAddr)
	log.Info("client connected")

	conn := newWSConn(ws, cfg.PingTimeout, log)
	defer conn.close()

	go conn.readPump(func(msg controlMessage) {
		h.handleControl(sess, msg, log)
	})

	record := &store.SessionRecord{
		ID:         sess.ID.String(),
		RemoteAddr: sess.RemoteAddr,
		StartedAt:  sess.StartedAt,
		Smoothing:  sess.Pipeline.Enabled(),
	}
	h.srv.recordStart(record)

	cam, err := cfg.OpenCamera()
	if err != nil {
		log.Errorw("camera unavailable", "error", err)
		conn.sendJSON(map[string]string{"error": msgWebcamNotFound})
		h.srv.recordFinish(record, session.Stats{Reason: reasonCameraUnavailable}, err)
		return
	}

	det, err := cfg.OpenDetector()
	if err != nil {
		log.Errorw("detector unavailable", "error", err)
		cam.Close()
		conn.sendJSON(map[string]string{"error": msgDetectorUnavailable})
		h.srv.recordFinish(record, session.Stats{Reason: reasonDetectorFailed}, err)
		return
	}

	loop, err := session.NewLoop(cfg.Loop, session.Components{
		Source:    cam,
		Detector:  det,
		Pipeline:  sess.Pipeline,
		Renderer:  cfg.Renderer,
		Publisher: conn,
		Prober:    conn,
		Clock:     cfg.Clock,
		Logger:    log,
	})
	if err != nil {
		cam.Close()
		det.Close()
		log.Errorw("session setup failed", "error", err)
		h.srv.recordFinish(record, session.Stats{}, err)
		return
	}
	sess.Attach(loop)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.srv.ctx, cancel)
	defer stop()

	runErr := loop.Run(ctx)
	stats := loop.Stats()
	record.Smoothing = sess.Pipeline.Enabled()
	h.srv.recordFinish(record, stats, runErr)

	if runErr != nil {
		log.Errorw("session failed", "error", runErr, "frames", stats.Frames, "reason", stats.Reason)
		return
	}
	log.Infow("client disconnected", "frames", stats.Frames, "detections", stats.Detections, "reason", stats.Reason)
}

func (h *TrackingHandler) handleControl(sess *session.Session, msg controlMessage, log *zap.SugaredLogger) {
	switch msg.Type {
	case controlSetFilter:
		var enabled bool
		if err := json.Unmarshal(msg.Value, &enabled); err != nil {
			log.Debugw("ignoring SET_FILTER with non-boolean value", "value", string(msg.Value))
			return
		}
		sess.Pipeline.SetEnabled(enabled)
		log.Infow("smoothing toggled", "enabled", enabled)
	default:
		log.Debugw("ignoring unknown control message", "type", msg.Type)
	}
}

// recordStart stores the session start if a store is configured.
func (s *Server) recordStart(rec *store.SessionRecord) {
	if s.config.Store == nil {
		return
	}
	if err := s.config.Store.Sessions().Create(rec); err != nil {
		s.logger.Warnw("record session start", "session", rec.ID, "error", err)
	}
}

// recordFinish stores final counters if a store is configured.
func (s *Server) recordFinish(rec *store.SessionRecord, stats session.Stats, runErr error) {
	if s.config.Store == nil {
		return
	}

	ended := s.config.Clock.Now()
	rec.EndedAt = &ended
	rec.Frames = stats.Frames
	rec.Detections = stats.Detections
	rec.Pinches = stats.Pinches
	rec.Reason = stats.Reason
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	if err := s.config.Store.Sessions().Finish(rec); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warnw("record session finish", "session", rec.ID, "error", err)
	}
}
