// Package filesystem defines the uniform capability contract the planner
// and verifier are polymorphic over. Concrete adapters (POSIX, iRODS)
// are external collaborators; this package only fixes the interface and
// ships a couple of reference implementations good enough to exercise
// the rest of the system without a real cluster filesystem mounted.
package filesystem

import (
	"context"
	"errors"
	"fmt"
)

// ErrDataInaccessible is returned by Size and Checksum when Exists would
// return false for the same address.
var ErrDataInaccessible = errors.New("filesystem: data inaccessible")

// ErrUnsupportedChecksum is returned by Checksum when the requested
// algorithm is not in SupportedChecksums().
var ErrUnsupportedChecksum = errors.New("filesystem: unsupported checksum algorithm")

// Cursor streams the addresses discovered by enumerating a FoFN. It must
// not materialise the whole file: Next is called once per yielded address
// and returns io.EOF-shaped termination via (false, nil).
type Cursor interface {
	// Next advances the cursor. It returns ok=false, err=nil at the
	// natural end of the stream.
	Next(ctx context.Context) (address string, ok bool, err error)
	Close() error
}

// Capability is the contract every registered filesystem instance must
// satisfy.
type Capability interface {
	// Name is the filesystem's configured name, matching the persisted
	// Filesystem row it is resolved from.
	Name() string

	// MaxConcurrency bounds how many attempts may run against this
	// filesystem concurrently.
	MaxConcurrency() int

	// Exists reports whether address resolves to readable data.
	Exists(ctx context.Context, address string) (bool, error)

	// SupportedChecksums lists the checksum algorithms this filesystem
	// can compute.
	SupportedChecksums() []string

	// Size returns the byte size of the data at address. It fails with
	// ErrDataInaccessible if Exists would return false.
	Size(ctx context.Context, address string) (int64, error)

	// Checksum computes the named digest of the data at address. It
	// fails with ErrUnsupportedChecksum if algo is not supported, and
	// ErrDataInaccessible under the same condition as Size.
	Checksum(ctx context.Context, algo, address string) (string, error)

	// EnumerateFoFN opens a streaming cursor over a file-of-filenames at
	// path, using delimiter to split records (default newline) and
	// transparently decompressing if compressed is true.
	EnumerateFoFN(ctx context.Context, path string, delimiter byte, compressed bool) (Cursor, error)

	// SetMetadata and Delete are mutating operations the core never
	// invokes itself, but which adapters must expose per the capability
	// contract.
	SetMetadata(ctx context.Context, address, key, value string) error
	Delete(ctx context.Context, address string) error
}

// Registry resolves persisted filesystem names to live Capability
// instances, mirroring the persistence protocol's
// filesystem_convertor(name).
type Registry struct {
	byName map[string]Capability
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Capability)}
}

// Register adds fs under its own Name(). A second registration under the
// same name replaces the first.
func (r *Registry) Register(fs Capability) {
	r.byName[fs.Name()] = fs
}

// Resolve looks up a registered Capability by name.
func (r *Registry) Resolve(name string) (Capability, error) {
	fs, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("filesystem: no convertor registered for %q", name)
	}
	return fs, nil
}
