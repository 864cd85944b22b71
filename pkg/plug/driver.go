package plug

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates a plug id is not known to the addressed driver.
	ErrNotFound = errors.New("plug not found")

	// ErrDriverNotFound indicates no driver is registered for a plug's vendor.
	ErrDriverNotFound = errors.New("driver not found")

	// ErrUnsupported indicates the vendor has no implementation for the
	// requested capability (e.g. power metering on a plain relay).
	ErrUnsupported = errors.New("capability not supported")
)

// Driver is the per-vendor device control contract. Implementations must
// tolerate unreachable devices: discovery yields offline entries rather than
// failing the whole sweep, and state errors are returned per call.
type Driver interface {
	// Vendor returns the vendor key this driver serves (e.g. "shelly").
	Vendor() string

	// Discover enumerates the plugs the driver can currently account for,
	// normalized with best-effort live state.
	Discover(ctx context.Context) ([]Plug, error)

	// GetState reads the current power state of one plug.
	GetState(ctx context.Context, plugID string) (State, error)

	// SetOn switches a plug and returns the resulting state.
	SetOn(ctx context.Context, plugID string, on bool) (State, error)

	// ReadPower returns the instantaneous power draw in watts.
	// Drivers without power metering return ErrUnsupported.
	ReadPower(ctx context.Context, plugID string) (float64, error)

	// SyncManualDefinitions replaces the driver's set of manually registered
	// devices for its vendor.
	SyncManualDefinitions(defs []Definition)
}
