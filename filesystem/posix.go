package filesystem

import (
	"bufio"
	"compress/gzip"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// POSIX is a reference Capability implementation over a local or
// network-mounted POSIX filesystem (the shape iRODS/Lustre adapters
// would wrap; the real adapters are out of scope per the filesystem
// component design, but a POSIX double is enough to exercise the
// planner, verifier, and worker loop end to end against real files).
type POSIX struct {
	name           string
	maxConcurrency int
}

// NewPOSIX constructs a POSIX capability under the given registered name.
func NewPOSIX(name string, maxConcurrency int) *POSIX {
	return &POSIX{name: name, maxConcurrency: maxConcurrency}
}

func (p *POSIX) Name() string       { return p.name }
func (p *POSIX) MaxConcurrency() int { return p.maxConcurrency }

func (p *POSIX) Exists(_ context.Context, address string) (bool, error) {
	_, err := os.Stat(address)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *POSIX) SupportedChecksums() []string { return []string{"md5", "sha256"} }

func (p *POSIX) Size(ctx context.Context, address string) (int64, error) {
	ok, err := p.Exists(ctx, address)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrDataInaccessible
	}
	info, err := os.Stat(address)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (p *POSIX) Checksum(ctx context.Context, algo, address string) (string, error) {
	ok, err := p.Exists(ctx, address)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrDataInaccessible
	}

	var h interface {
		io.Writer
		Sum([]byte) []byte
	}
	switch algo {
	case "md5":
		h = md5.New()
	case "sha256":
		h = sha256.New()
	default:
		return "", ErrUnsupportedChecksum
	}

	f, err := os.Open(address)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (p *POSIX) SetMetadata(_ context.Context, _, _, _ string) error {
	// POSIX has no native key/value metadata store; xattrs would be the
	// natural backing but are not wired here since the core never calls
	// this operation.
	return nil
}

func (p *POSIX) Delete(_ context.Context, address string) error {
	return os.Remove(address)
}

type posixCursor struct {
	file    *os.File
	scanner *bufio.Scanner
	gz      *gzip.Reader
}

func (c *posixCursor) Next(_ context.Context) (string, bool, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return c.scanner.Text(), true, nil
}

func (c *posixCursor) Close() error {
	if c.gz != nil {
		_ = c.gz.Close()
	}
	return c.file.Close()
}

// EnumerateFoFN streams a newline (or delimiter) delimited list of
// addresses from a FoFN file, never reading the whole file into memory.
func (p *POSIX) EnumerateFoFN(_ context.Context, path string, delimiter byte, compressed bool) (Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var r io.Reader = f
	var gz *gzip.Reader
	if compressed {
		gz, err = gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if delimiter != 0 && delimiter != '\n' {
		scanner.Split(splitOn(delimiter))
	}
	return &posixCursor{file: f, scanner: scanner, gz: gz}, nil
}
