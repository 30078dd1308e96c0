package secret

import (
	"bytes"
	"errors"
	"sync"
)

// ErrEmpty is returned when a buffer would hold no secret material.
var ErrEmpty = errors.New("secret: empty secret")

// Buffer is a fixed-size region of protected memory. It must not be
// copied after creation.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	locked bool
	closed bool
}

// NewFromBytes copies source into protected memory and zeroes source, so
// the caller's slice no longer holds the secret.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, ErrEmpty
	}
	data, locked, err := allocate(len(source))
	if err != nil {
		Zero(source)
		return nil, err
	}
	copy(data, source)
	Zero(source)
	return &Buffer{data: data, locked: locked}, nil
}

// NewTrimmed behaves like NewFromBytes after trimming surrounding
// whitespace. The whole of source is zeroed either way.
func NewTrimmed(source []byte) (*Buffer, error) {
	defer Zero(source)
	trimmed := bytes.TrimSpace(source)
	if len(trimmed) == 0 {
		return nil, ErrEmpty
	}
	return NewFromBytes(trimmed)
}

// Copy returns a heap copy of the secret for a single call boundary. The
// caller zeroes it with Zero when done.
func (b *Buffer) Copy() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return bytes.Clone(b.data)
}

// Len returns the size of the secret, or 0 once closed.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	return len(b.data)
}

// Locked reports whether the region is pinned in RAM.
func (b *Buffer) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close zeroes and releases the region. It is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	Zero(b.data)
	err := release(b.data, b.locked)
	b.data = nil
	return err
}

// Zero overwrites data with zero bytes.
func Zero(data []byte) {
	clear(data)
}
