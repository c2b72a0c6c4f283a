// Package transport owns the single capability that crosses the process
// boundary: handing a page buffer to a remote endpoint for one opcode and
// getting the same memory back.
//
// Ownership boundary:
// - Transport/Handler contracts and lend modes
// - in-process loopback endpoint table
// - instrumentation decorator
//
// A transfer blocks until the remote replies. There is no timeout or
// cancellation; a remote that never replies blocks the caller.
package transport
