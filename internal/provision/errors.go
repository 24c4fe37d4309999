package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrResolution is returned when the screen resolution cannot be read or parsed.
	ErrResolution = errors.New("provision: resolution unavailable")

	// ErrInstall is matched by every *InstallError.
	ErrInstall = errors.New("provision: companion install failed")
)

// InstallError reports which companion tool failed to install.
type InstallError struct {
	Tool string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("provision: installing %s: %v", e.Tool, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInstall.
func (e *InstallError) Is(target error) bool {
	return target == ErrInstall
}
