package harness

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrReleaseInProgress is the cause of an InvalidHandleError returned when
// another caller is already releasing the handle.
var ErrReleaseInProgress = errors.New("release already in progress")

// ProvisioningError means the instance never became ready.
type ProvisioningError struct {
	Image string
	// Stage is one of validate, start or ready.
	Stage string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s failed at %s: %v", e.Image, e.Stage, e.Err)
}

// Unwrap returns the cause.
func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// InvalidHandleError is returned for operations on a handle that is not in a
// state allowing them.
type InvalidHandleError struct {
	Op    string
	State State
	Err   error
}

func (e *InvalidHandleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s on %s handle: %v", e.Op, e.State, e.Err)
	}
	return fmt.Sprintf("%s on %s handle", e.Op, e.State)
}

// Unwrap returns the cause, if any.
func (e *InvalidHandleError) Unwrap() error {
	return e.Err
}

// TeardownError means the control plane could not remove the instance.
type TeardownError struct {
	ID  string
	Err error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("tearing down %s: %v", e.ID, e.Err)
}

// Unwrap returns the cause.
func (e *TeardownError) Unwrap() error {
	return e.Err
}
