// Package securemem keeps secrets in memory XOR-ed with a random pad held in
// a separate allocation, and wipes them on demand.
//
// This is a best-effort mitigation against casual memory inspection. The Go
// runtime may still copy secret bytes while they are revealed.
package securemem

import (
	"crypto/rand"
	"errors"
	"runtime"
	"sync"
)

var (
	// ErrUnknownHandle is returned when revealing a secret that was never
	// stored or that has already been wiped.
	ErrUnknownHandle = errors.New("secret handle not found or already wiped")
	// ErrNullSecret ...
	ErrNullSecret = errors.New("secret must not be null")
)

// Handle references a secret held by a Container.
type Handle uint64

type entry struct {
	pad    []byte
	masked []byte
}

func (e *entry) wipe() {
	Zero(e.pad)
	Zero(e.masked)
	e.pad, e.masked = nil, nil
}

// Container holds obfuscated secrets. The zero value is not usable, use New.
type Container struct {
	lock    sync.Mutex
	nextID  Handle
	entries map[Handle]*entry
}

// New returns an empty Container.
func New() *Container {
	return &Container{
		entries: make(map[Handle]*entry),
	}
}

// Store obfuscates the secret and returns a handle to it. The given buffer is
// zeroed before returning.
func (c *Container) Store(secret []byte) (Handle, error) {
	if len(secret) <= 0 {
		return 0, ErrNullSecret
	}
	defer Zero(secret)

	pad := make([]byte, len(secret))
	if _, err := rand.Read(pad); err != nil {
		return 0, err
	}
	masked := make([]byte, len(secret))
	for i := range secret {
		masked[i] = secret[i] ^ pad[i]
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.nextID++
	c.entries[c.nextID] = &entry{pad: pad, masked: masked}
	return c.nextID, nil
}

// Reveal returns a fresh plaintext copy of the secret. The caller owns the
// copy and must Zero it as soon as the operation using it completes.
func (c *Container) Reveal(h Handle) ([]byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	e, ok := c.entries[h]
	if !ok {
		return nil, ErrUnknownHandle
	}
	secret := make([]byte, len(e.masked))
	for i := range e.masked {
		secret[i] = e.masked[i] ^ e.pad[i]
	}
	return secret, nil
}

// Wipe zeroes and forgets the secret. Wiping an unknown handle is a no-op.
func (c *Container) Wipe(h Handle) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if e, ok := c.entries[h]; ok {
		e.wipe()
		delete(c.entries, h)
	}
}

// WipeAll zeroes and forgets every secret held.
func (c *Container) WipeAll() {
	c.lock.Lock()
	defer c.lock.Unlock()

	for h, e := range c.entries {
		e.wipe()
		delete(c.entries, h)
	}
}

// Len returns the number of secrets currently held.
func (c *Container) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.entries)
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
