package capture

import "errors"

var (
	// ErrNoFace means no frame in the capture attempt yielded a usable face.
	ErrNoFace = errors.New("capture: no usable face detected")
	// ErrMultipleFaces aborts a capture when any frame contains more than
	// one face. Identity is ambiguous; we never silently pick one.
	ErrMultipleFaces = errors.New("capture: multiple faces detected")
	// ErrInitTimeout means camera/model initialization did not complete
	// within the configured bound. Distinct from permission and device
	// errors so the client can render specific guidance.
	ErrInitTimeout = errors.New("capture: initialization timeout")
)
