package capture

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vigilo/proctor_backend_v1/internal/camera"
	"github.com/vigilo/proctor_backend_v1/internal/detector"
	"github.com/vigilo/proctor_backend_v1/internal/matcher"
)

// Detector is the face inference collaborator the coordinator drives.
type Detector interface {
	DetectFaces(ctx context.Context, frame camera.Frame) ([]detector.Face, error)
}

// Readier is satisfied by inference clients whose models load lazily.
type Readier interface {
	EnsureReady(ctx context.Context) error
}

// Options tune the multi-frame capture policy.
type Options struct {
	Frames      int           // frames per capture attempt
	FrameDelay  time.Duration // spacing between frames
	InitTimeout time.Duration // bound on camera/model initialization
}

func (o Options) withDefaults() Options {
	if o.Frames <= 0 {
		o.Frames = 3
	}
	if o.FrameDelay <= 0 {
		o.FrameDelay = 300 * time.Millisecond
	}
	if o.InitTimeout <= 0 {
		o.InitTimeout = 45 * time.Second
	}
	return o
}

// Result is one finished capture attempt.
type Result struct {
	Embedding []float64    // mean of the usable frames
	Frame     camera.Frame // last usable frame, kept as the reference image
	Frames    int          // frames that contributed to the embedding
}

// Coordinator produces one stable embedding from a session's camera feed,
// tolerating transient per-frame detection failure. It borrows the feed for
// the duration of an attempt and releases it on every exit path.
type Coordinator struct {
	feed *camera.Feed
	det  Detector
	opts Options
	log  *zap.Logger
}

func NewCoordinator(feed *camera.Feed, det Detector, opts Options, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{feed: feed, det: det, opts: opts.withDefaults(), log: log}
}

// WaitReady blocks until the feed is live and the detector's models are
// loaded, failing with a distinct error per cause. Client-reported camera
// errors surface immediately rather than burning the whole timeout.
func (co *Coordinator) WaitReady(ctx context.Context) error {
	deadline := time.Now().Add(co.opts.InitTimeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if r, ok := co.det.(Readier); ok {
		if err := r.EnsureReady(ctx); err != nil {
			if ctx.Err() != nil {
				return initErr(ctx)
			}
			return err
		}
	}

	for {
		switch co.feed.Status() {
		case camera.StatusPermissionDenied:
			return camera.ErrPermissionDenied
		case camera.StatusNoDevice:
			return camera.ErrNoDevice
		}
		if co.feed.Live(time.Now().UTC()) {
			return nil
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			if co.feed.Closed() {
				return camera.ErrFeedClosed
			}
			return initErr(ctx)
		}
	}
}

// initErr keeps ErrInitTimeout for the init deadline only; a cancelled
// caller (session teardown) gets its own cancellation back.
func initErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrInitTimeout
	}
	return ctx.Err()
}

// Capture runs the multi-frame policy: up to Frames frames spaced by
// FrameDelay. A frame with several faces aborts the attempt; a frame with
// none is skipped. Usable embeddings are averaged element-wise.
func (co *Coordinator) Capture(ctx context.Context) (Result, error) {
	if err := co.feed.Borrow(); err != nil {
		return Result{}, err
	}
	defer co.feed.Release()

	var (
		embeddings [][]float64
		lastFrame  camera.Frame
	)
	for i := 0; i < co.opts.Frames; i++ {
		if i > 0 {
			select {
			case <-time.After(co.opts.FrameDelay):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		frame, err := co.feed.Latest()
		if err != nil {
			if err == camera.ErrFeedClosed {
				return Result{}, err
			}
			co.log.Debug("capture frame unavailable", zap.Int("frame", i), zap.Error(err))
			continue
		}

		faces, err := co.det.DetectFaces(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			co.log.Debug("capture detection failed", zap.Int("frame", i), zap.Error(err))
			continue
		}
		if len(faces) > 1 {
			return Result{}, ErrMultipleFaces
		}
		if len(faces) == 0 {
			continue
		}
		emb := faces[0].Embedding
		if len(emb) != matcher.EmbeddingDim {
			co.log.Warn("detector returned malformed embedding", zap.Int("len", len(emb)))
			continue
		}
		embeddings = append(embeddings, emb)
		lastFrame = frame
	}

	mean := matcher.Mean(embeddings)
	if mean == nil {
		return Result{}, ErrNoFace
	}
	return Result{Embedding: mean, Frame: lastFrame, Frames: len(embeddings)}, nil
}

// RunGuidance evaluates the latest frame on a fixed interval and reports a
// quality classification through report. It runs until ctx is cancelled and
// never touches the borrow state, so it cannot block a capture attempt.
func (co *Coordinator) RunGuidance(ctx context.Context, interval time.Duration, report func(Quality)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame, err := co.feed.Latest()
		if err != nil {
			report(QualityNoFace)
			continue
		}
		faces, err := co.det.DetectFaces(ctx, frame)
		if err != nil {
			continue
		}
		report(ClassifyQuality(faces, frame.Width, frame.Height))
	}
}
