package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vigilo/proctor_backend_v1/internal/camera"
	"github.com/vigilo/proctor_backend_v1/internal/detector"
	"github.com/vigilo/proctor_backend_v1/internal/ledger"
	"github.com/vigilo/proctor_backend_v1/internal/matcher"
)

// switchDetector returns whatever faces it is currently set to.
type switchDetector struct {
	mu    sync.Mutex
	faces []detector.Face
	err   error
}

func (d *switchDetector) DetectFaces(ctx context.Context, frame camera.Frame) ([]detector.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	out := make([]detector.Face, len(d.faces))
	copy(out, d.faces)
	return out, nil
}

func (d *switchDetector) set(faces []detector.Face) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faces = faces
}

func embWith(v float64) []float64 {
	e := make([]float64, matcher.EmbeddingDim)
	for i := range e {
		e[i] = v
	}
	return e
}

func faceOf(emb []float64) detector.Face {
	return detector.Face{Box: detector.Box{X: 220, Y: 140, W: 200, H: 200}, Embedding: emb}
}

type fakeIdentityStore struct {
	mu         sync.Mutex
	embeddings map[string][]float64
	imageRefs  map[string]string
	attempts   []VerificationAttempt
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{
		embeddings: make(map[string][]float64),
		imageRefs:  make(map[string]string),
	}
}

func (f *fakeIdentityStore) Enrollment(ctx context.Context, studentID string) ([]float64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	emb, ok := f.embeddings[studentID]
	if !ok || len(emb) != matcher.EmbeddingDim {
		return nil, "", ErrEnrollmentRequired
	}
	return emb, f.imageRefs[studentID], nil
}

func (f *fakeIdentityStore) SaveEnrollment(ctx context.Context, studentID string, embedding []float64, imageRef string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings[studentID] = embedding
	f.imageRefs[studentID] = imageRef
	return nil
}

func (f *fakeIdentityStore) LogAttempt(ctx context.Context, a VerificationAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeIdentityStore) attemptCount(mode string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.attempts {
		if a.Mode == mode {
			n++
		}
	}
	return n
}

type fakeEvidenceStore struct {
	mu    sync.Mutex
	fail  bool
	saves int
}

func (f *fakeEvidenceStore) Save(ctx context.Context, sessionID string, at time.Time, jpeg []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("upload refused")
	}
	f.saves++
	return fmt.Sprintf("evidence/%s/%d.jpg", sessionID, f.saves), nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (f *fakeRecorder) Append(ctx context.Context, sessionID string, ev ledger.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRecorder) count(t ledger.ViolationType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (f *fakeRecorder) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeSessionStore struct {
	mu    sync.Mutex
	saves []Snapshot
	gate  chan struct{} // when set, Save blocks until the gate closes
}

func (f *fakeSessionStore) Save(ctx context.Context, snap Snapshot) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.saves = append(f.saves, snap)
	f.mu.Unlock()
	return nil
}

func (f *fakeSessionStore) last() (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		return Snapshot{}, false
	}
	return f.saves[len(f.saves)-1], true
}

type testEnv struct {
	o        *Orchestrator
	det      *switchDetector
	ids      *fakeIdentityStore
	evidence *fakeEvidenceStore
	recorder *fakeRecorder
	store    *fakeSessionStore
}

func fastConfig() Config {
	return Config{
		MatchThreshold:      0.55,
		LockThreshold:       3,
		SilentCheckInterval: time.Hour, // direct calls in tests; timer-driven in TestTeardown
		MismatchCooldown:    40 * time.Millisecond,
		CaptureFrames:       3,
		CaptureFrameDelay:   time.Millisecond,
		InitTimeout:         100 * time.Millisecond,
		FeedStaleAfter:      time.Minute,
		GuidanceInterval:    time.Hour,
		AutoSaveInterval:    time.Hour,
		SubmitTimeout:       100 * time.Millisecond,
		SubmitRetries:       2,
		SubmitRetryDelay:    time.Millisecond,
	}
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		det:      &switchDetector{},
		ids:      newFakeIdentityStore(),
		evidence: &fakeEvidenceStore{},
		recorder: &fakeRecorder{},
		store:    &fakeSessionStore{},
	}
	env.o = New(cfg, env.det, env.ids, env.evidence, env.recorder, env.store, nil, nil)
	return env
}

// startSession creates a session with a live frame pushed.
func (env *testEnv) startSession(t *testing.T, studentID string) Snapshot {
	t.Helper()
	snap, err := env.o.StartSession(context.Background(), studentID, "exam-101", 0)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	err = env.o.PushFrame(snap.SessionID, camera.Frame{
		JPEG: []byte{0xff, 0xd8}, Width: 640, Height: 480, CapturedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("push frame: %v", err)
	}
	return snap
}

// startActive enrolls the student so the session reaches active.
func (env *testEnv) startActive(t *testing.T, studentID string, emb []float64) Snapshot {
	t.Helper()
	snap := env.startSession(t, studentID)
	env.det.set([]detector.Face{faceOf(emb)})
	if _, err := env.o.Enroll(context.Background(), snap.SessionID); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	s, err := env.o.Get(snap.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != StateActive {
		t.Fatalf("state after enroll: got %s, want active", s.State())
	}
	return s.Snapshot()
}

func TestStartSession_AwaitsIdentity(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startSession(t, "student-1")
	if snap.State != StateAwaitingIdentity {
		t.Errorf("state: got %s, want awaiting_identity_check", snap.State)
	}
	if _, err := env.o.StartSession(context.Background(), "student-1", "exam-101", 0); !errors.Is(err, ErrSessionExists) {
		t.Errorf("second session for same student: got %v, want ErrSessionExists", err)
	}
}

func TestVerifyIdentity_EnrollmentRequiredIsExplicit(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startSession(t, "student-1")
	env.det.set([]detector.Face{faceOf(embWith(0.1))})

	_, err := env.o.VerifyIdentity(context.Background(), snap.SessionID)
	if !errors.Is(err, ErrEnrollmentRequired) {
		t.Fatalf("verify with no enrollment: got %v, want ErrEnrollmentRequired", err)
	}
	s, _ := env.o.Get(snap.SessionID)
	if s.State() != StateAwaitingIdentity {
		t.Errorf("state after enrollment-required: got %s, want awaiting", s.State())
	}
}

func TestEnroll_ActivatesAndStores(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	emb := embWith(0.2)
	env.startActive(t, "student-1", emb)

	stored, imageRef, err := env.ids.Enrollment(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("enrollment not stored: %v", err)
	}
	if len(stored) != matcher.EmbeddingDim {
		t.Errorf("stored embedding length: got %d", len(stored))
	}
	if imageRef == "" {
		t.Error("enrollment has no reference image")
	}
	if env.ids.attemptCount(ModeEnroll) != 1 {
		t.Error("enroll attempt not logged")
	}
}

func TestVerifyIdentity_Match(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	stored := embWith(0.2)
	env.ids.embeddings["student-1"] = stored
	snap := env.startSession(t, "student-1")

	// Live capture within threshold of the stored embedding.
	live := embWith(0.2)
	live[0] += 0.42
	env.det.set([]detector.Face{faceOf(live)})

	att, err := env.o.VerifyIdentity(context.Background(), snap.SessionID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !att.Match {
		t.Error("attempt not a match")
	}
	s, _ := env.o.Get(snap.SessionID)
	if s.State() != StateActive {
		t.Errorf("state: got %s, want active", s.State())
	}
	if env.recorder.total() != 0 {
		t.Errorf("violations raised on successful verify: %d", env.recorder.total())
	}
}

func TestVerifyIdentity_MismatchLoopsBack(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	env.ids.embeddings["student-1"] = embWith(0.2)
	snap := env.startSession(t, "student-1")
	env.det.set([]detector.Face{faceOf(embWith(5))})

	att, err := env.o.VerifyIdentity(context.Background(), snap.SessionID)
	if !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("verify with wrong face: got %v, want ErrIdentityMismatch", err)
	}
	if att.Match {
		t.Error("attempt reported a match")
	}
	s, _ := env.o.Get(snap.SessionID)
	if s.State() != StateAwaitingIdentity {
		t.Errorf("state after mismatch: got %s, want awaiting for retry", s.State())
	}
	if env.ids.attemptCount(ModeVerify) != 1 {
		t.Error("verify attempt not logged")
	}
}

func TestSilentVerify_MismatchRaisesOneEventWithCooldown(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	env.startActive(t, "student-1", embWith(0.2))
	s, _ := env.o.SessionForStudent("student-1")

	// Someone else in front of the camera.
	env.det.set([]detector.Face{faceOf(embWith(5))})

	env.o.silentVerify(context.Background(), s)
	if got := env.recorder.count(ledger.TypeIdentityMismatch); got != 1 {
		t.Fatalf("mismatch events: got %d, want 1", got)
	}

	// Re-check inside the cooldown window: no second event.
	env.o.silentVerify(context.Background(), s)
	if got := env.recorder.count(ledger.TypeIdentityMismatch); got != 1 {
		t.Fatalf("mismatch events within cooldown: got %d, want still 1", got)
	}

	time.Sleep(60 * time.Millisecond) // past the 40ms cooldown
	env.o.silentVerify(context.Background(), s)
	if got := env.recorder.count(ledger.TypeIdentityMismatch); got != 2 {
		t.Fatalf("mismatch events after cooldown: got %d, want 2", got)
	}
	if env.ids.attemptCount(ModeSilent) != 3 {
		t.Errorf("silent attempts logged: got %d, want 3", env.ids.attemptCount(ModeSilent))
	}
}

func TestSilentVerify_MatchRaisesNothing(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	env.startActive(t, "student-1", embWith(0.2))
	s, _ := env.o.SessionForStudent("student-1")

	live := embWith(0.2)
	live[0] += 0.42
	env.det.set([]detector.Face{faceOf(live)})

	env.o.silentVerify(context.Background(), s)
	if env.recorder.total() != 0 {
		t.Errorf("violations after matching silent check: %d", env.recorder.total())
	}
	if s.Snapshot().LastSilentCheck.IsZero() {
		t.Error("last silent check not recorded")
	}
}

func TestSilentVerify_SkipsWhenFeedBorrowed(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	env.startActive(t, "student-1", embWith(0.2))
	s, _ := env.o.SessionForStudent("student-1")
	env.det.set([]detector.Face{faceOf(embWith(5))})

	if err := s.Feed().Borrow(); err != nil {
		t.Fatal(err)
	}
	env.o.silentVerify(context.Background(), s)
	if env.recorder.total() != 0 {
		t.Error("silent check ran while verification UI held the camera")
	}
}

func TestWorkerAlert_RoutesAndCapturesEvidence(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startActive(t, "student-1", embWith(0.2))

	msg := WorkerMessage{
		Type:          WorkerAlert,
		Code:          "FORBIDDEN_OBJECT",
		DetectedClass: "cell phone",
		Confidence:    0.91,
	}
	if err := env.o.HandleWorkerMessage(context.Background(), snap.SessionID, msg); err != nil {
		t.Fatalf("worker message: %v", err)
	}

	if got := env.recorder.count(ledger.TypeObjectDetected); got != 1 {
		t.Fatalf("object events: got %d, want 1", got)
	}
	env.recorder.mu.Lock()
	ev := env.recorder.events[0]
	env.recorder.mu.Unlock()
	if ev.Severity != ledger.SeverityCritical {
		t.Errorf("severity: got %s, want critical", ev.Severity)
	}
	if ev.EvidenceRef == "" {
		t.Error("critical object event has no evidence reference")
	}
	if ev.Metadata["detected_class"] != "cell phone" {
		t.Errorf("metadata class: got %q", ev.Metadata["detected_class"])
	}
}

func TestWorkerAlert_UnknownCodeGoesUnclassified(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startActive(t, "student-1", embWith(0.2))

	msg := WorkerMessage{Type: WorkerAlert, Code: "SOMETHING_NEW"}
	if err := env.o.HandleWorkerMessage(context.Background(), snap.SessionID, msg); err != nil {
		t.Fatal(err)
	}
	if got := env.recorder.count(ledger.TypeUnclassified); got != 1 {
		t.Errorf("unclassified events: got %d, want 1", got)
	}
}

func TestWorkerStatus_UpdatesCamera(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startActive(t, "student-1", embWith(0.2))
	s, _ := env.o.Get(snap.SessionID)

	msg := WorkerMessage{Type: WorkerStatus, Code: StatusPermissionDenied}
	if err := env.o.HandleWorkerMessage(context.Background(), snap.SessionID, msg); err != nil {
		t.Fatal(err)
	}
	if got := s.Feed().Status(); got != camera.StatusPermissionDenied {
		t.Errorf("feed status: got %s, want permission_denied", got)
	}
	if env.recorder.total() != 0 {
		t.Error("status message produced a violation")
	}
}

func TestEvidenceFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startActive(t, "student-1", embWith(0.2))
	env.evidence.fail = true

	msg := WorkerMessage{Type: WorkerAlert, Code: "MULTIPLE_PERSONS"}
	if err := env.o.HandleWorkerMessage(context.Background(), snap.SessionID, msg); err != nil {
		t.Fatalf("alert with failing evidence store: %v", err)
	}
	if got := env.recorder.count(ledger.TypeMultiPerson); got != 1 {
		t.Errorf("event still recorded without evidence: got %d, want 1", got)
	}
}

func TestLockout_ThirdCriticalLocksSession(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startActive(t, "student-1", embWith(0.2))
	s, _ := env.o.Get(snap.SessionID)

	for i := 0; i < 3; i++ {
		msg := WorkerMessage{Type: WorkerAlert, Code: "FORBIDDEN_OBJECT", DetectedClass: "cell phone"}
		if err := env.o.HandleWorkerMessage(context.Background(), snap.SessionID, msg); err != nil {
			t.Fatal(err)
		}
	}
	if s.State() != StateLocked {
		t.Fatalf("state after 3 criticals: got %s, want locked", s.State())
	}

	// Lock is terminal; a 4th event appends for audit only.
	msg := WorkerMessage{Type: WorkerAlert, Code: "FORBIDDEN_OBJECT"}
	if err := env.o.HandleWorkerMessage(context.Background(), snap.SessionID, msg); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateLocked {
		t.Errorf("state changed after lockout: %s", s.State())
	}
	if got := env.recorder.count(ledger.TypeObjectDetected); got != 4 {
		t.Errorf("audit log after lock: got %d events, want 4", got)
	}

	if err := env.o.Submit(context.Background(), snap.SessionID, false); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("normal submit on locked session: got %v, want ErrSessionLocked", err)
	}
	if err := env.o.Submit(context.Background(), snap.SessionID, true); err != nil {
		t.Errorf("forced submit on locked session: %v", err)
	}
}

func TestLockout_BeforeActivationStillCounts(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startSession(t, "student-1")
	s, _ := env.o.Get(snap.SessionID)

	// Worker alerts can arrive while the identity gate is still open.
	for i := 0; i < 3; i++ {
		msg := WorkerMessage{Type: WorkerAlert, Code: "FORBIDDEN_OBJECT", DetectedClass: "cell phone"}
		if err := env.o.HandleWorkerMessage(context.Background(), snap.SessionID, msg); err != nil {
			t.Fatal(err)
		}
	}
	if s.State() != StateLocked {
		t.Fatalf("state after 3 pre-activation criticals: got %s, want locked", s.State())
	}

	// Neither enrollment nor verification reopens a locked session.
	env.det.set([]detector.Face{faceOf(embWith(0.2))})
	if _, err := env.o.Enroll(context.Background(), snap.SessionID); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("enroll on locked session: got %v, want ErrSessionLocked", err)
	}
	if _, err := env.o.VerifyIdentity(context.Background(), snap.SessionID); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("verify on locked session: got %v, want ErrSessionLocked", err)
	}
	if s.State() != StateLocked {
		t.Errorf("state after identity attempts: got %s, want still locked", s.State())
	}

	if err := env.o.Submit(context.Background(), snap.SessionID, false); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("normal submit on pre-activation lockout: got %v, want ErrSessionLocked", err)
	}
	if err := env.o.Submit(context.Background(), snap.SessionID, true); err != nil {
		t.Errorf("forced submit on locked session: %v", err)
	}
}

type countingNotifier struct {
	mu      sync.Mutex
	updates []Snapshot
}

func (n *countingNotifier) SessionUpdated(snap Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, snap)
}

func (n *countingNotifier) ViolationRecorded(Snapshot, ledger.Event) {}

func (n *countingNotifier) lockNotices() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.updates {
		if s.State == StateLocked {
			c++
		}
	}
	return c
}

func TestLockout_AnnouncedOnce(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	notes := &countingNotifier{}
	env.o.notifier = notes
	snap := env.startActive(t, "student-1", embWith(0.2))

	// Two audit-only events follow the locking one.
	for i := 0; i < 5; i++ {
		msg := WorkerMessage{Type: WorkerAlert, Code: "FORBIDDEN_OBJECT"}
		if err := env.o.HandleWorkerMessage(context.Background(), snap.SessionID, msg); err != nil {
			t.Fatal(err)
		}
	}
	if got := notes.lockNotices(); got != 1 {
		t.Errorf("locked session updates: got %d, want 1", got)
	}
}

func TestSubmit_SuppressesClientSignals(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startActive(t, "student-1", embWith(0.2))

	gate := make(chan struct{})
	env.store.mu.Lock()
	env.store.gate = gate
	env.store.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- env.o.Submit(context.Background(), snap.SessionID, false)
	}()

	// Wait until the session is in submitting, then fire a signal whose
	// trigger is the act of submitting itself.
	s, _ := env.o.Get(snap.SessionID)
	for i := 0; i < 100 && s.State() != StateSubmitting; i++ {
		time.Sleep(time.Millisecond)
	}
	if s.State() != StateSubmitting {
		t.Fatalf("state: got %s, want submitting", s.State())
	}
	if err := env.o.HandleClientSignal(context.Background(), snap.SessionID, "FULLSCREEN_EXIT", nil); err != nil {
		t.Fatalf("signal during submit: %v", err)
	}
	if got := env.recorder.count(ledger.TypeFullscreenExit); got != 0 {
		t.Errorf("fullscreen-exit recorded during submission: %d events", got)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.o.Get(snap.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Error("session still registered after submit")
	}
	last, ok := env.store.last()
	if !ok || last.State != StateEnded {
		t.Errorf("final persisted state: got %v, want ended", last.State)
	}
}

func TestClientSignal_Classification(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startActive(t, "student-1", embWith(0.2))

	tests := []struct {
		code string
		want ledger.ViolationType
	}{
		{"TAB_SWITCH", ledger.TypeTabSwitch},
		{"FULLSCREEN_EXIT", ledger.TypeFullscreenExit},
		{"KEYBOARD_SHORTCUT", ledger.TypeKeyboardShortcut},
		{"RIGHT_CLICK", ledger.TypeRightClick},
		{"SOMETHING_ELSE", ledger.TypeUnclassified},
	}
	for _, tt := range tests {
		if err := env.o.HandleClientSignal(context.Background(), snap.SessionID, tt.code, nil); err != nil {
			t.Fatalf("signal %s: %v", tt.code, err)
		}
		if got := env.recorder.count(tt.want); got != 1 {
			t.Errorf("signal %s: %s count got %d, want 1", tt.code, tt.want, got)
		}
	}
}

func TestTeardown_NoDanglingTimers(t *testing.T) {
	cfg := fastConfig()
	cfg.SilentCheckInterval = 10 * time.Millisecond
	cfg.MismatchCooldown = time.Millisecond
	env := newTestEnv(t, cfg)
	snap := env.startActive(t, "student-1", embWith(0.2))
	s, _ := env.o.Get(snap.SessionID)

	// Let the silent-verify timer raise at least one mismatch.
	env.det.set([]detector.Face{faceOf(embWith(5))})
	deadline := time.Now().Add(time.Second)
	for env.recorder.count(ledger.TypeIdentityMismatch) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if env.recorder.count(ledger.TypeIdentityMismatch) == 0 {
		t.Fatal("silent-verify timer never fired")
	}

	if err := env.o.Teardown(snap.SessionID); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if !s.tasks.Stopped() {
		t.Error("task group still running after teardown")
	}
	if !s.Feed().Closed() {
		t.Error("camera feed still open after teardown")
	}

	// Advancing past several silent-verification intervals must produce
	// nothing new.
	before := env.recorder.total()
	time.Sleep(50 * time.Millisecond)
	if after := env.recorder.total(); after != before {
		t.Errorf("events after teardown: got %d new", after-before)
	}
}

func TestSubmit_RetriesTimeoutsOnly(t *testing.T) {
	env := newTestEnv(t, fastConfig())
	snap := env.startActive(t, "student-1", embWith(0.2))

	// A store that never answers: every attempt times out.
	gate := make(chan struct{})
	env.store.mu.Lock()
	env.store.gate = gate
	env.store.mu.Unlock()

	err := env.o.Submit(context.Background(), snap.SessionID, false)
	if !errors.Is(err, ErrNetworkTimeout) {
		t.Fatalf("submit against dead store: got %v, want ErrNetworkTimeout", err)
	}
	s, _ := env.o.Get(snap.SessionID)
	if s.State() != StateSubmitting {
		t.Errorf("state after failed submit: got %s, want submitting for retry", s.State())
	}

	// Store recovers; retrying the submit completes the session.
	close(gate)
	if err := env.o.Submit(context.Background(), snap.SessionID, false); err != nil {
		t.Fatalf("submit retry: %v", err)
	}
}
