// Package secret holds the master secret outside the Go heap.
//
// A Buffer is backed by an anonymous mmap region that is locked into RAM
// where the platform allows it and, on Linux, excluded from core dumps.
// Close zeroes the region before releasing it. Once closed, reads panic.
package secret
