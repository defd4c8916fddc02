// Package registration runs health worker sign-up: camera permission, a
// live face capture checked by the backend, then account creation.
package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/media"
)

type State string

const (
	StateIdle      State = "idle"
	StateVerifying State = "verifying"
	StateValid     State = "valid"
	StateInvalid   State = "invalid"
)

type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

type event string

const (
	eventCapture  event = "capture"
	eventAccepted event = "accepted"
	eventRejected event = "rejected"
	eventReset    event = "reset"
)

var transitions = map[State]map[event]State{
	StateIdle:      {eventCapture: StateVerifying, eventReset: StateIdle},
	StateVerifying: {eventAccepted: StateValid, eventRejected: StateInvalid, eventReset: StateIdle},
	StateValid:     {eventCapture: StateVerifying, eventReset: StateIdle},
	StateInvalid:   {eventCapture: StateVerifying, eventReset: StateIdle},
}

var (
	ErrPermissionDenied   = errors.New("camera permission denied")
	ErrPermissionRequired = errors.New("camera permission not granted yet")
	ErrBusy               = errors.New("a capture is already being verified")
	ErrNotVerified        = errors.New("no verified face capture")
)

// FaceVerifier checks that a capture shows one live human face.
type FaceVerifier interface {
	VerifyFace(ctx context.Context, in flows.FaceInput) (flows.FaceOutput, error)
}

// Status is the externally visible state of a FaceCapture.
type Status struct {
	State      State      `json:"state"`
	Permission Permission `json:"permission"`
	Reason     string     `json:"reason,omitempty"`
}

// FaceCapture is the capture state machine. The cached capture survives only
// in the valid state.
type FaceCapture struct {
	mu         sync.Mutex
	state      State
	permission Permission
	photo      string
	reason     string
	verifier   FaceVerifier
}

func NewFaceCapture(v FaceVerifier) *FaceCapture {
	return &FaceCapture{state: StateIdle, permission: PermissionUnknown, verifier: v}
}

func (c *FaceCapture) fire(e event) error {
	next, ok := transitions[c.state][e]
	if !ok {
		return fmt.Errorf("cannot %s while %s", e, c.state)
	}
	c.state = next
	return nil
}

// SetPermission records the browser's camera permission answer. Denying it
// discards any capture.
func (c *FaceCapture) SetPermission(granted bool) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if granted {
		c.permission = PermissionGranted
	} else {
		c.permission = PermissionDenied
		if c.state != StateVerifying {
			c.state, c.photo, c.reason = StateIdle, "", ""
		}
	}
	return c.status()
}

// Capture verifies dataURI. A rejected capture or a failed check leaves the
// machine invalid with a reason and no cached photo.
func (c *FaceCapture) Capture(ctx context.Context, dataURI string) (Status, error) {
	if _, err := media.ParseDataURI(dataURI); err != nil {
		return c.Status(), fmt.Errorf("%w: %w", flows.ErrInvalidInput, err)
	}

	c.mu.Lock()
	switch c.permission {
	case PermissionDenied:
		c.mu.Unlock()
		return c.Status(), ErrPermissionDenied
	case PermissionUnknown:
		c.mu.Unlock()
		return c.Status(), ErrPermissionRequired
	}
	if c.state == StateVerifying {
		c.mu.Unlock()
		return c.Status(), ErrBusy
	}
	if err := c.fire(eventCapture); err != nil {
		c.mu.Unlock()
		return c.Status(), err
	}
	c.photo, c.reason = dataURI, ""
	c.mu.Unlock()

	out, err := c.verifier.VerifyFace(ctx, flows.FaceInput{PhotoDataURI: dataURI})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateVerifying {
		// reset while the check was running
		return c.status(), nil
	}
	switch {
	case err != nil:
		_, msg := flows.Status(err)
		c.reject(msg)
		return c.status(), err
	case !out.IsValid:
		reason := out.Reason
		if reason == "" {
			reason = "No clear live face was detected. Please try again."
		}
		c.reject(reason)
	default:
		_ = c.fire(eventAccepted)
	}
	return c.status(), nil
}

func (c *FaceCapture) reject(reason string) {
	_ = c.fire(eventRejected)
	c.photo, c.reason = "", reason
}

// Reset returns to idle and drops the capture.
func (c *FaceCapture) Reset() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.fire(eventReset)
	c.photo, c.reason = "", ""
	return c.status()
}

// VerifiedPhoto returns the capture only while the machine is valid.
func (c *FaceCapture) VerifiedPhoto() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateValid || c.photo == "" {
		return "", false
	}
	return c.photo, true
}

func (c *FaceCapture) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status()
}

func (c *FaceCapture) status() Status {
	return Status{State: c.state, Permission: c.permission, Reason: c.reason}
}
