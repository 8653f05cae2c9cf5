// Package session runs one real-time tracking loop per connected client and
// keeps track of the live sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/render"
	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DefaultFrameInterval paces the loop at roughly 30 updates per second.
const DefaultFrameInterval = 33 * time.Millisecond

// FrameSource yields camera frames. The caller closes each returned Mat.
type FrameSource interface {
	ReadFrame() (*gocv.Mat, error)
	Close() error
}

// Renderer turns an annotated frame into a preview image string.
type Renderer interface {
	Render(frame *gocv.Mat, hand *detector.HandLandmarks, pinching bool) (string, error)
}

// Publisher delivers an update to the consumer.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Prober checks that the consumer is still there.
type Prober interface {
	Probe(ctx context.Context) error
}

// Termination reasons recorded in Stats.
const (
	ReasonRunning        = ""
	ReasonConsumerClosed = "consumer_closed"
	ReasonCanceled       = "canceled"
	ReasonCaptureFailed  = "capture_failed"
	ReasonDetectFailed   = "detect_failed"
	ReasonPublishFailed  = "publish_failed"
)

// LoopConfig tunes a Loop.
type LoopConfig struct {
	// FrameInterval is the target cycle period. Zero disables pacing.
	FrameInterval time.Duration

	// PinchThreshold is the strict thumb-to-index distance for shooting.
	PinchThreshold float64

	// Mirror flips each frame horizontally before detection.
	Mirror bool
}

// DefaultLoopConfig returns a mirrored 30 fps loop.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		FrameInterval:  DefaultFrameInterval,
		PinchThreshold: DefaultPinchThreshold,
		Mirror:         true,
	}
}

// Components are the collaborators a Loop drives. Source, Detector,
// Pipeline, Publisher and Prober are required.
type Components struct {
	Source    FrameSource
	Detector  detector.Detector
	Pipeline  *filter.Pipeline
	Renderer  Renderer
	Publisher Publisher
	Prober    Prober
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
}

// Stats summarizes a loop's work so far.
type Stats struct {
	Frames     int64
	Detections int64
	Pinches    int64
	Reason     string
}

// Loop is the per-session real-time cycle:
// probe, capture, detect, filter, render, publish, pace.
//
// Run must be called at most once. Stats may be read concurrently.
type Loop struct {
	cfg LoopConfig
	c   Components

	frames     atomic.Int64
	detections atomic.Int64
	pinches    atomic.Int64

	mu     sync.Mutex
	reason string

	lastTimestamp int64
	releaseOnce   sync.Once
	releaseErr    error
}

// NewLoop validates the components and builds a Loop.
func NewLoop(cfg LoopConfig, c Components) (*Loop, error) {
	switch {
	case c.Source == nil:
		return nil, errors.New("session: frame source is required")
	case c.Detector == nil:
		return nil, errors.New("session: detector is required")
	case c.Pipeline == nil:
		return nil, errors.New("session: filter pipeline is required")
	case c.Publisher == nil:
		return nil, errors.New("session: publisher is required")
	case c.Prober == nil:
		return nil, errors.New("session: prober is required")
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if cfg.PinchThreshold <= 0 {
		cfg.PinchThreshold = DefaultPinchThreshold
	}
	if cfg.FrameInterval < 0 {
		cfg.FrameInterval = 0
	}

	return &Loop{cfg: cfg, c: c, lastTimestamp: -1}, nil
}

// Run drives cycles until the consumer goes away, ctx is cancelled, or a
// collaborator fails fatally. A consumer going away and cancellation are
// normal ends and return nil. The frame source and detector are closed
// exactly once before Run returns; close errors are combined into the
// result.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Append(err, l.release())
	}()

	start := l.c.Clock.Now()
	l.c.Logger.Debugw("loop started", "frame_interval", l.cfg.FrameInterval)

	for {
		if ctx.Err() != nil {
			l.finish(ReasonCanceled)
			return nil
		}

		cycleStart := l.c.Clock.Now()

		done, err := l.cycle(ctx, cycleStart.Sub(start))
		if err != nil || done {
			return err
		}

		if !l.pace(ctx, cycleStart) {
			l.finish(ReasonCanceled)
			return nil
		}
	}
}

// cycle runs one iteration. It reports done for a normal end of session.
func (l *Loop) cycle(ctx context.Context, sinceStart time.Duration) (bool, error) {
	if err := l.c.Prober.Probe(ctx); err != nil {
		l.c.Logger.Infow("consumer gone", "error", err)
		l.finish(ReasonConsumerClosed)
		return true, nil
	}

	frame, err := l.c.Source.ReadFrame()
	if err != nil {
		l.finish(ReasonCaptureFailed)
		return true, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	defer frame.Close()

	if l.cfg.Mirror {
		render.Mirror(frame)
	}

	update, err := l.process(frame, l.timestamp(sinceStart))
	if err != nil {
		l.finish(ReasonDetectFailed)
		return true, err
	}

	if err := l.c.Publisher.Publish(ctx, update); err != nil {
		if errors.Is(err, ErrConsumerClosed) {
			l.c.Logger.Infow("consumer closed during publish", "error", err)
			l.finish(ReasonConsumerClosed)
			return true, nil
		}
		l.finish(ReasonPublishFailed)
		return true, fmt.Errorf("publish: %w", err)
	}

	l.frames.Add(1)
	return false, nil
}

// process detects, filters and renders one frame.
func (l *Loop) process(frame *gocv.Mat, timestampMs int64) (Update, error) {
	hands, err := l.c.Detector.Detect(frame, timestampMs)
	if err != nil {
		if !errors.Is(err, detector.ErrTransient) {
			return Update{}, fmt.Errorf("%w: %w", ErrDetect, err)
		}
		l.c.Logger.Debugw("transient detection failure", "error", err)
		hands = nil
	}

	update := NoDetection()
	var hand *detector.HandLandmarks
	pinching := false

	if len(hands) > 0 {
		hand = &hands[0]
		tip := hand.IndexTip()
		pinching = IsPinching(hand, l.cfg.PinchThreshold)

		update.Detected = true
		update.Shooting = pinching
		update.X, update.Y = l.c.Pipeline.Filter(filter.At(tip.X, tip.Y))

		l.detections.Add(1)
		if pinching {
			l.pinches.Add(1)
		}
	} else {
		l.c.Pipeline.Filter(filter.Absent)
	}

	if l.c.Renderer != nil {
		image, err := l.c.Renderer.Render(frame, hand, pinching)
		if err != nil {
			l.c.Logger.Warnw("render failed", "error", err)
		} else {
			update.Image = image
		}
	}

	return update, nil
}

// timestamp converts elapsed session time to a strictly increasing
// millisecond value.
func (l *Loop) timestamp(sinceStart time.Duration) int64 {
	ts := sinceStart.Milliseconds()
	if ts <= l.lastTimestamp {
		ts = l.lastTimestamp + 1
	}
	l.lastTimestamp = ts
	return ts
}

// pace sleeps for whatever remains of the frame interval. It returns false if
// ctx was cancelled while waiting.
func (l *Loop) pace(ctx context.Context, cycleStart time.Time) bool {
	wait := l.cfg.FrameInterval - l.c.Clock.Since(cycleStart)
	if wait <= 0 {
		return ctx.Err() == nil
	}

	timer := l.c.Clock.Timer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (l *Loop) finish(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reason == ReasonRunning {
		l.reason = reason
	}
}

// release closes the frame source and detector exactly once.
func (l *Loop) release() error {
	l.releaseOnce.Do(func() {
		l.releaseErr = multierr.Combine(
			l.c.Source.Close(),
			l.c.Detector.Close(),
		)
		if l.releaseErr != nil {
			l.c.Logger.Warnw("release failed", "error", l.releaseErr)
		}
		l.c.Logger.Debugw("loop released", "frames", l.frames.Load())
	})
	return l.releaseErr
}

// Stats returns a snapshot of the loop counters and its termination reason.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	reason := l.reason
	l.mu.Unlock()

	return Stats{
		Frames:     l.frames.Load(),
		Detections: l.detections.Load(),
		Pinches:    l.pinches.Load(),
		Reason:     reason,
	}
}
