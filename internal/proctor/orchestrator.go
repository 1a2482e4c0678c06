package proctor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vigilo/proctor_backend_v1/internal/camera"
	"github.com/vigilo/proctor_backend_v1/internal/capture"
	"github.com/vigilo/proctor_backend_v1/internal/detector"
	"github.com/vigilo/proctor_backend_v1/internal/ledger"
	"github.com/vigilo/proctor_backend_v1/internal/matcher"
)

// Verification modes recorded in the attempt log.
const (
	ModeEnroll = "enroll"
	ModeVerify = "verify"
	ModeSilent = "random"
)

// VerificationAttempt is the transient record of one identity check. Only
// the score, match flag, and reason outlive the attempt; raw embeddings are
// discarded unless the attempt is an enrollment.
type VerificationAttempt struct {
	SessionID  string
	StudentID  string
	Mode       string
	Distance   float64
	Similarity float64
	Match      bool
	Reason     string
	At         time.Time
}

// IdentityStore reads and writes enrollment records and attempt logs.
type IdentityStore interface {
	// Enrollment returns the stored embedding and reference image for a
	// student, or ErrEnrollmentRequired when none (or a malformed one)
	// exists.
	Enrollment(ctx context.Context, studentID string) ([]float64, string, error)
	SaveEnrollment(ctx context.Context, studentID string, embedding []float64, imageRef string, at time.Time) error
	LogAttempt(ctx context.Context, a VerificationAttempt) error
}

// EvidenceStore uploads an image blob keyed by session and timestamp.
type EvidenceStore interface {
	Save(ctx context.Context, sessionID string, at time.Time, jpeg []byte) (string, error)
}

// ViolationRecorder appends one record per violation event.
type ViolationRecorder interface {
	Append(ctx context.Context, sessionID string, ev ledger.Event) error
}

// SessionStore persists session snapshots for dashboards and audit.
type SessionStore interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Notifier receives verdict callbacks for the exam UI and dashboards.
type Notifier interface {
	SessionUpdated(snap Snapshot)
	ViolationRecorded(snap Snapshot, ev ledger.Event)
}

type noopNotifier struct{}

func (noopNotifier) SessionUpdated(Snapshot)                  {}
func (noopNotifier) ViolationRecorded(Snapshot, ledger.Event) {}

// Config carries the hand-tuned proctoring policy.
type Config struct {
	MatchThreshold      float64
	LockThreshold       int
	SilentCheckInterval time.Duration
	MismatchCooldown    time.Duration
	CaptureFrames       int
	CaptureFrameDelay   time.Duration
	InitTimeout         time.Duration
	FeedStaleAfter      time.Duration
	GuidanceInterval    time.Duration
	AutoSaveInterval    time.Duration
	SubmitTimeout       time.Duration
	SubmitRetries       int
	SubmitRetryDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = matcher.DefaultThreshold
	}
	if c.LockThreshold <= 0 {
		c.LockThreshold = ledger.DefaultLockThreshold
	}
	if c.SilentCheckInterval <= 0 {
		c.SilentCheckInterval = 3 * time.Minute
	}
	if c.MismatchCooldown <= 0 {
		c.MismatchCooldown = 30 * time.Second
	}
	if c.CaptureFrames <= 0 {
		c.CaptureFrames = 3
	}
	if c.CaptureFrameDelay <= 0 {
		c.CaptureFrameDelay = 300 * time.Millisecond
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 45 * time.Second
	}
	if c.FeedStaleAfter <= 0 {
		c.FeedStaleAfter = 10 * time.Second
	}
	if c.GuidanceInterval <= 0 {
		c.GuidanceInterval = time.Second
	}
	if c.AutoSaveInterval <= 0 {
		c.AutoSaveInterval = 30 * time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 10 * time.Second
	}
	if c.SubmitRetries <= 0 {
		c.SubmitRetries = 3
	}
	if c.SubmitRetryDelay <= 0 {
		c.SubmitRetryDelay = 2 * time.Second
	}
	return c
}

// Orchestrator owns every live proctoring session: lifecycle, silent
// re-verification, worker event routing, evidence capture, and teardown.
type Orchestrator struct {
	cfg        Config
	det        capture.Detector
	identities IdentityStore
	evidence   EvidenceStore
	violations ViolationRecorder
	sessions   SessionStore
	notifier   Notifier
	log        *zap.Logger

	regMu     sync.Mutex
	active    map[string]*Session
	byStudent map[string]string
}

func New(cfg Config, det capture.Detector, identities IdentityStore, evidence EvidenceStore, violations ViolationRecorder, sessions SessionStore, notifier Notifier, log *zap.Logger) *Orchestrator {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		det:        det,
		identities: identities,
		evidence:   evidence,
		violations: violations,
		sessions:   sessions,
		notifier:   notifier,
		log:        log,
		active:     make(map[string]*Session),
		byStudent:  make(map[string]string),
	}
}

// StartSession creates a session in the identity-check gate. The session
// does not become active until verification or enrollment succeeds.
func (o *Orchestrator) StartSession(ctx context.Context, studentID, examRef string, duration time.Duration) (Snapshot, error) {
	o.regMu.Lock()
	if existing, ok := o.byStudent[studentID]; ok {
		if s, ok := o.active[existing]; ok && s.State() != StateEnded {
			o.regMu.Unlock()
			return Snapshot{}, ErrSessionExists
		}
	}

	now := time.Now().UTC()
	feed := camera.NewFeed(o.cfg.FeedStaleAfter)
	s := &Session{
		ID:        uuid.NewString(),
		StudentID: studentID,
		ExamRef:   examRef,
		ledger:    ledger.New(o.cfg.LockThreshold),
		feed:      feed,
		tasks:     NewTaskGroup(),
		state:     StateInitializing,
		startedAt: now,
	}
	if duration > 0 {
		s.deadline = now.Add(duration)
	}
	s.coordinator = capture.NewCoordinator(feed, o.det, capture.Options{
		Frames:      o.cfg.CaptureFrames,
		FrameDelay:  o.cfg.CaptureFrameDelay,
		InitTimeout: o.cfg.InitTimeout,
	}, o.log.Named("capture"))

	o.active[s.ID] = s
	o.byStudent[studentID] = s.ID
	o.regMu.Unlock()

	_ = s.transition(StateAwaitingIdentity)

	// Session-start persistence is network-bound: race against a timeout
	// with bounded retries, and fail the start rather than run unaudited.
	err := withRetry(ctx, o.cfg.SubmitRetries, o.cfg.SubmitTimeout, o.cfg.SubmitRetryDelay, func(ctx context.Context) error {
		return o.sessions.Save(ctx, s.Snapshot())
	})
	if err != nil {
		o.remove(s)
		s.tasks.Stop()
		feed.Close()
		return Snapshot{}, err
	}

	s.tasks.Every("guidance", o.cfg.GuidanceInterval, func(ctx context.Context) {
		o.qualityOnce(ctx, s)
	})

	snap := s.Snapshot()
	o.notifier.SessionUpdated(snap)
	return snap, nil
}

// Get returns a live session by id.
func (o *Orchestrator) Get(sessionID string) (*Session, error) {
	o.regMu.Lock()
	defer o.regMu.Unlock()
	s, ok := o.active[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// SessionForStudent returns the student's live session, if any.
func (o *Orchestrator) SessionForStudent(studentID string) (*Session, error) {
	o.regMu.Lock()
	id, ok := o.byStudent[studentID]
	o.regMu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return o.Get(id)
}

// Snapshots lists every live session, for monitoring surfaces.
func (o *Orchestrator) Snapshots() []Snapshot {
	o.regMu.Lock()
	sessions := make([]*Session, 0, len(o.active))
	for _, s := range o.active {
		sessions = append(sessions, s)
	}
	o.regMu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// PushFrame feeds one client camera frame into the session.
func (o *Orchestrator) PushFrame(sessionID string, frame camera.Frame) error {
	s, err := o.Get(sessionID)
	if err != nil {
		return err
	}
	s.feed.Push(frame)
	return nil
}

// VerifyIdentity runs the pre-exam identity check against the stored
// enrollment. A student with no (or malformed) enrollment gets
// ErrEnrollmentRequired: enrollment is an explicit branch, never inferred.
func (o *Orchestrator) VerifyIdentity(ctx context.Context, sessionID string) (VerificationAttempt, error) {
	s, err := o.Get(sessionID)
	if err != nil {
		return VerificationAttempt{}, err
	}
	switch s.State() {
	case StateAwaitingIdentity:
	case StateLocked:
		return VerificationAttempt{}, ErrSessionLocked
	default:
		return VerificationAttempt{}, ErrInvalidState
	}

	stored := s.storedEmbedding()
	if stored == nil {
		emb, imageRef, err := o.identities.Enrollment(ctx, s.StudentID)
		if err != nil {
			return VerificationAttempt{}, err
		}
		s.setEnrollment(emb, imageRef)
		stored = emb
	}

	if err := s.coordinator.WaitReady(ctx); err != nil {
		return VerificationAttempt{}, err
	}
	res, err := s.coordinator.Capture(ctx)
	if err != nil {
		return VerificationAttempt{}, err
	}

	dist := matcher.Distance(stored, res.Embedding)
	att := VerificationAttempt{
		SessionID:  s.ID,
		StudentID:  s.StudentID,
		Mode:       ModeVerify,
		Distance:   dist,
		Similarity: matcher.Similarity(dist),
		Match:      matcher.IsMatch(stored, res.Embedding, o.cfg.MatchThreshold),
		At:         time.Now().UTC(),
	}
	if !att.Match {
		att.Reason = "distance above threshold"
	}
	o.logAttempt(ctx, att)

	if !att.Match {
		// Session loops back in awaiting_identity_check for a retry.
		return att, ErrIdentityMismatch
	}
	o.activate(s)
	return att, nil
}

// Enroll captures and stores a fresh enrollment for the session's student,
// replacing any prior record wholesale, then activates the session.
func (o *Orchestrator) Enroll(ctx context.Context, sessionID string) (VerificationAttempt, error) {
	s, err := o.Get(sessionID)
	if err != nil {
		return VerificationAttempt{}, err
	}
	switch s.State() {
	case StateAwaitingIdentity:
	case StateLocked:
		return VerificationAttempt{}, ErrSessionLocked
	default:
		return VerificationAttempt{}, ErrInvalidState
	}

	if err := s.coordinator.WaitReady(ctx); err != nil {
		return VerificationAttempt{}, err
	}
	res, err := s.coordinator.Capture(ctx)
	if err != nil {
		return VerificationAttempt{}, err
	}

	now := time.Now().UTC()
	imageRef, err := o.evidence.Save(ctx, s.ID, now, res.Frame.JPEG)
	if err != nil {
		return VerificationAttempt{}, fmt.Errorf("%w: %v", ErrUploadFailure, err)
	}
	if err := o.identities.SaveEnrollment(ctx, s.StudentID, res.Embedding, imageRef, now); err != nil {
		return VerificationAttempt{}, err
	}
	s.setEnrollment(res.Embedding, imageRef)

	att := VerificationAttempt{
		SessionID:  s.ID,
		StudentID:  s.StudentID,
		Mode:       ModeEnroll,
		Similarity: 1,
		Match:      true,
		At:         now,
	}
	o.logAttempt(ctx, att)
	o.activate(s)
	return att, nil
}

func (o *Orchestrator) activate(s *Session) {
	if err := s.transition(StateActive); err != nil {
		return
	}
	s.tasks.Every("silent-verify", o.cfg.SilentCheckInterval, func(ctx context.Context) {
		o.silentVerify(ctx, s)
	})
	s.tasks.Every("auto-save", o.cfg.AutoSaveInterval, func(ctx context.Context) {
		o.saveSnapshot(ctx, s)
	})
	if !s.deadline.IsZero() {
		s.tasks.Every("countdown", time.Second, func(ctx context.Context) {
			if time.Now().UTC().After(s.deadline) && s.State() == StateActive {
				go o.autoSubmit(s.ID)
			}
		})
	}
	o.saveSnapshot(context.Background(), s)
	o.notifier.SessionUpdated(s.Snapshot())
}

func (o *Orchestrator) autoSubmit(sessionID string) {
	if err := o.Submit(context.Background(), sessionID, false); err != nil && !errors.Is(err, ErrInvalidState) {
		o.log.Warn("auto-submit failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// silentVerify is the periodic non-interruptive identity re-check. Its
// failures never surface to the examinee; a mismatch becomes a rate-limited
// identity_mismatch violation routed through the ledger.
func (o *Orchestrator) silentVerify(ctx context.Context, s *Session) {
	if s.State() != StateActive {
		return
	}
	now := time.Now().UTC()
	// Skip when the verification UI has the camera or the feed is dead.
	if s.feed.Borrowed() || !s.feed.Live(now) {
		return
	}
	frame, err := s.feed.Latest()
	if err != nil {
		return
	}
	faces, err := o.det.DetectFaces(ctx, frame)
	if err != nil {
		o.log.Debug("silent check detection failed", zap.String("session", s.ID), zap.Error(err))
		return
	}
	stored := s.storedEmbedding()
	if stored == nil {
		return
	}
	s.markSilentCheck(now)

	if len(faces) == 0 {
		// The ambient worker reports FACE_MISSING on its own channel.
		return
	}
	if len(faces) > 1 {
		o.recordViolation(ctx, s, ledger.TypeMultiPerson, map[string]string{
			"source": "silent_check",
			"faces":  strconv.Itoa(len(faces)),
		})
		return
	}

	dist := matcher.Distance(stored, faces[0].Embedding)
	att := VerificationAttempt{
		SessionID:  s.ID,
		StudentID:  s.StudentID,
		Mode:       ModeSilent,
		Distance:   dist,
		Similarity: matcher.Similarity(dist),
		Match:      matcher.IsMatch(stored, faces[0].Embedding, o.cfg.MatchThreshold),
		At:         now,
	}
	if !att.Match {
		att.Reason = "silent check mismatch"
	}
	o.logAttempt(ctx, att)

	if att.Match {
		return
	}
	if !s.mismatchAllowed(now, o.cfg.MismatchCooldown) {
		return
	}
	o.recordViolation(ctx, s, ledger.TypeIdentityMismatch, map[string]string{
		"source":     "silent_check",
		"distance":   strconv.FormatFloat(dist, 'f', 4, 64),
		"similarity": strconv.FormatFloat(att.Similarity, 'f', 4, 64),
	})
}

// HandleWorkerMessage routes one typed message from the inference worker.
func (o *Orchestrator) HandleWorkerMessage(ctx context.Context, sessionID string, msg WorkerMessage) error {
	s, err := o.Get(sessionID)
	if err != nil {
		return err
	}
	switch msg.Type {
	case WorkerStatus:
		if st, ok := cameraStatusOf(msg.Code); ok {
			s.feed.SetStatus(st)
		}
	case WorkerAlert:
		count := s.bumpAlertCount()
		meta := workerMeta(msg)
		meta["alert_count"] = strconv.Itoa(count)
		o.recordViolation(ctx, s, ClassifyAlert(msg.Code), meta)
	case WorkerGazeAway:
		o.recordViolation(ctx, s, ledger.TypeGazeAway, workerMeta(msg))
	default:
		o.recordViolation(ctx, s, ledger.TypeUnclassified, workerMeta(msg))
	}
	return nil
}

func workerMeta(msg WorkerMessage) map[string]string {
	meta := make(map[string]string, len(msg.Payload)+3)
	for k, v := range msg.Payload {
		meta[k] = v
	}
	meta["code"] = msg.Code
	if msg.DetectedClass != "" {
		meta["detected_class"] = msg.DetectedClass
	}
	if msg.Confidence > 0 {
		meta["confidence"] = strconv.FormatFloat(msg.Confidence, 'f', 3, 64)
	}
	return meta
}

// HandleClientSignal routes browser-side signals (tab switch, fullscreen
// exit, shortcut, right click). Signals arriving once submission has begun
// are dropped so submitting can never look like a violation.
func (o *Orchestrator) HandleClientSignal(ctx context.Context, sessionID, code string, meta map[string]string) error {
	s, err := o.Get(sessionID)
	if err != nil {
		return err
	}
	switch s.State() {
	case StateSubmitting, StateEnded:
		return nil
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta["code"] = code
	o.recordViolation(ctx, s, ClassifyClientSignal(code), meta)
	return nil
}

// recordViolation classifies, optionally snapshots evidence, appends to the
// ledger, and fans out. Persistence and evidence failures are swallowed so
// proctoring telemetry never interrupts the exam.
func (o *Orchestrator) recordViolation(ctx context.Context, s *Session, t ledger.ViolationType, meta map[string]string) ledger.Outcome {
	now := time.Now().UTC()
	var evidenceRef string
	if evidenceTypes[t] {
		evidenceRef = o.captureEvidence(ctx, s, now)
	}

	out := s.ledger.Record(t, meta, evidenceRef, now)
	if out.Locked {
		if err := s.transition(StateLocked); err != nil {
			o.log.Warn("lock transition rejected",
				zap.String("session", s.ID),
				zap.String("state", string(s.State())),
				zap.Error(err))
		} else {
			o.log.Info("session locked",
				zap.String("session", s.ID),
				zap.String("student", s.StudentID),
				zap.Int("critical_count", s.ledger.CriticalCount()))
			// Stop must not run on a task goroutine.
			go s.tasks.Stop()
		}
	}

	if err := o.violations.Append(ctx, s.ID, out.Event); err != nil {
		o.log.Warn("violation persist failed",
			zap.String("session", s.ID),
			zap.String("type", string(out.Event.Type)),
			zap.Error(err))
	}
	o.saveSnapshot(ctx, s)
	o.notifier.ViolationRecorded(s.Snapshot(), out.Event)
	if out.Locked {
		// Exactly once, on the event that tripped the lock. Later
		// audit-only appends do not re-announce.
		o.notifier.SessionUpdated(s.Snapshot())
	}
	return out
}

func (o *Orchestrator) captureEvidence(ctx context.Context, s *Session, now time.Time) string {
	frame, err := s.feed.Latest()
	if err != nil {
		o.log.Debug("evidence capture skipped", zap.String("session", s.ID), zap.Error(err))
		return ""
	}
	ref, err := o.evidence.Save(ctx, s.ID, now, frame.JPEG)
	if err != nil {
		o.log.Warn("evidence upload failed", zap.String("session", s.ID), zap.Error(err))
		return ""
	}
	return ref
}

// Submit moves the session through submitting to ended, persisting the
// final snapshot with bounded retry on timeout. A locked session requires
// force (the explicit forced-submit recovery path).
func (o *Orchestrator) Submit(ctx context.Context, sessionID string, force bool) error {
	s, err := o.Get(sessionID)
	if err != nil {
		return err
	}

	switch s.State() {
	case StateActive:
		// Guards the race where the ledger locked before the state
		// machine caught up.
		if s.ledger.Locked() && !force {
			return ErrSessionLocked
		}
	case StateLocked:
		if !force {
			return ErrSessionLocked
		}
	case StateSubmitting:
		// Retry of a previously failed submit.
	default:
		return ErrInvalidState
	}

	s.ledger.BeginSubmission()
	if s.State() != StateSubmitting {
		if err := s.transition(StateSubmitting); err != nil {
			return err
		}
	}

	err = withRetry(ctx, o.cfg.SubmitRetries, o.cfg.SubmitTimeout, o.cfg.SubmitRetryDelay, func(ctx context.Context) error {
		return o.sessions.Save(ctx, s.Snapshot())
	})
	if err != nil {
		// Leave the session in submitting; the client may retry.
		return err
	}

	o.finish(s)
	return nil
}

// Teardown ends a session unconditionally: one atomic step stopping all
// timers, closing the camera feed, and unregistering the session.
func (o *Orchestrator) Teardown(sessionID string) error {
	s, err := o.Get(sessionID)
	if err != nil {
		return err
	}
	o.finish(s)
	return nil
}

func (o *Orchestrator) finish(s *Session) {
	s.tasks.Stop()
	s.feed.Close()
	_ = s.transition(StateEnded)
	o.remove(s)
	o.saveSnapshot(context.Background(), s)
	o.notifier.SessionUpdated(s.Snapshot())
}

func (o *Orchestrator) remove(s *Session) {
	o.regMu.Lock()
	defer o.regMu.Unlock()
	delete(o.active, s.ID)
	if id, ok := o.byStudent[s.StudentID]; ok && id == s.ID {
		delete(o.byStudent, s.StudentID)
	}
}

func (o *Orchestrator) qualityOnce(ctx context.Context, s *Session) {
	frame, err := s.feed.Latest()
	if err != nil {
		s.setQuality(capture.QualityNoFace)
		return
	}
	faces, err := o.det.DetectFaces(ctx, frame)
	if err != nil {
		return
	}
	s.setQuality(capture.ClassifyQuality(faces, frame.Width, frame.Height))
}

func (o *Orchestrator) saveSnapshot(ctx context.Context, s *Session) {
	if err := o.sessions.Save(ctx, s.Snapshot()); err != nil {
		o.log.Warn("session snapshot persist failed", zap.String("session", s.ID), zap.Error(err))
	}
}

func (o *Orchestrator) logAttempt(ctx context.Context, att VerificationAttempt) {
	if err := o.identities.LogAttempt(ctx, att); err != nil {
		o.log.Warn("verification attempt log failed",
			zap.String("session", att.SessionID),
			zap.String("mode", att.Mode),
			zap.Error(err))
	}
}

var _ capture.Detector = (*detector.Client)(nil)
