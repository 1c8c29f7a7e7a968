// Package memory provides the low-level storage primitive used by the
// order book: a fixed-capacity slab of records addressed by index.
//
// Slots are handed out and reclaimed through a stack of free indices, so
// steady-state order flow never touches the Go heap. Handles are plain
// indices and stay valid for the lifetime of the slab; the backing slice
// is never resized.
package memory
