package proctor

import (
	"github.com/vigilo/proctor_backend_v1/internal/camera"
	"github.com/vigilo/proctor_backend_v1/internal/ledger"
)

// WorkerMessageType is the message kind sent by the inference worker.
type WorkerMessageType string

const (
	WorkerStatus   WorkerMessageType = "STATUS"
	WorkerAlert    WorkerMessageType = "ALERT"
	WorkerGazeAway WorkerMessageType = "GAZE_AWAY"
)

// WorkerMessage is one typed message from the object/gaze inference worker.
// Code is a stable enumeration key, never display text.
type WorkerMessage struct {
	Type          WorkerMessageType `json:"type"`
	Code          string            `json:"code"`
	Payload       map[string]string `json:"payload,omitempty"`
	DetectedClass string            `json:"detectedClass,omitempty"`
	Confidence    float64           `json:"confidence,omitempty"`
}

// Worker status codes.
const (
	StatusCameraOK         = "CAMERA_OK"
	StatusCameraError      = "CAMERA_ERROR"
	StatusPermissionDenied = "PERMISSION_DENIED"
	StatusNoDevice         = "NO_DEVICE"
	StatusModelReady       = "MODEL_READY"
)

// alertCodeTable is the closed translation from worker alert codes to
// violation types. Unknown codes land in the unclassified bucket.
var alertCodeTable = map[string]ledger.ViolationType{
	"FORBIDDEN_OBJECT":    ledger.TypeObjectDetected,
	"MULTIPLE_PERSONS":    ledger.TypeMultiPerson,
	"FACE_MISSING":        ledger.TypeFaceNotDetected,
	"SUSPICIOUS_BEHAVIOR": ledger.TypeAIAlert,
}

// clientSignalTable translates exam-client signals (browser events) into
// violation types.
var clientSignalTable = map[string]ledger.ViolationType{
	"TAB_SWITCH":        ledger.TypeTabSwitch,
	"FULLSCREEN_EXIT":   ledger.TypeFullscreenExit,
	"KEYBOARD_SHORTCUT": ledger.TypeKeyboardShortcut,
	"RIGHT_CLICK":       ledger.TypeRightClick,
}

// evidenceTypes is the subset of critical violations that trigger a
// synchronous evidence snapshot.
var evidenceTypes = map[ledger.ViolationType]bool{
	ledger.TypeObjectDetected:   true,
	ledger.TypeMultiPerson:      true,
	ledger.TypeIdentityMismatch: true,
}

// ClassifyAlert maps an ALERT code to its violation type.
func ClassifyAlert(code string) ledger.ViolationType {
	if t, ok := alertCodeTable[code]; ok {
		return t
	}
	return ledger.TypeUnclassified
}

// ClassifyClientSignal maps an exam-client signal code to its violation type.
func ClassifyClientSignal(code string) ledger.ViolationType {
	if t, ok := clientSignalTable[code]; ok {
		return t
	}
	return ledger.TypeUnclassified
}

func cameraStatusOf(code string) (camera.Status, bool) {
	switch code {
	case StatusCameraOK, StatusModelReady:
		return camera.StatusOK, true
	case StatusPermissionDenied:
		return camera.StatusPermissionDenied, true
	case StatusNoDevice, StatusCameraError:
		return camera.StatusNoDevice, true
	}
	return camera.StatusUnknown, false
}
