// Package ipc wraps the System V IPC primitives oschat is built on: a shared
// memory segment identified by a well-known key, and a two-member semaphore
// set providing a cross-process mutex and a counting notify signal.
//
// # Main Types
//
//   - [SharedMemory]: an attached shared memory segment
//   - [SemSet]: the semaphore set; [SemSet.Mutex] and [SemSet.Notify] expose
//     its two members with distinct purposes
//   - [Mutex]: binary semaphore serializing all segment access
//   - [Notify]: counting semaphore signalling "new message available"
//
// # Creation
//
// [CreateSharedMemory] and [CreateSemSet] use IPC_CREAT|IPC_EXCL, so exactly
// one of two racing processes succeeds and the other observes [ErrExists].
// Callers must never decide who initializes by inspecting segment contents.
//
// # Crash Safety
//
// Mutex operations carry SEM_UNDO: if a process dies while holding the mutex
// the kernel reverts its decrement and the peer can continue.
//
// # Removal
//
// Removing an object that is already gone reports [ErrRemoved]. Teardown code
// treats that as success.
//
// Only linux/amd64 and linux/arm64 are supported; elsewhere every constructor
// returns [ErrUnsupported].
package ipc
