package ipc

import "errors"

var (
	// ErrExists is returned by exclusive creation when the key is taken.
	ErrExists = errors.New("ipc: object already exists")

	// ErrNotExist is returned when attaching to a key nobody created.
	ErrNotExist = errors.New("ipc: object does not exist")

	// ErrRemoved is returned when the object was removed, either before or
	// during the call.
	ErrRemoved = errors.New("ipc: object was removed")

	// ErrPermission is returned when the caller lacks access to the object.
	ErrPermission = errors.New("ipc: permission denied")

	// ErrUnsupported is returned on platforms without System V IPC support.
	ErrUnsupported = errors.New("ipc: System V IPC not supported on this platform")
)

// Key identifies a System V IPC object. Both peers must agree on it out of band.
type Key int32
