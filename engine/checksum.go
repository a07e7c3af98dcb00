package engine

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/franksops/filexfer/provider"
)

// ErrIO marks local read, write and copy failures.
var ErrIO = errors.New("io error")

// ErrSameFile is returned when a copy's source and destination are one file.
var ErrSameFile = errors.New("source and destination are the same file")

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

// DigestSize is the length in bytes of a content digest.
const DigestSize = md5.Size

// Digest is a 128-bit content digest. MD5 guards against accidental
// corruption in transit; it is not a tamper check.
type Digest [DigestSize]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func sumOf(h hash.Hash) Digest {
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// ChecksumReader wraps an io.Reader to compute a digest while reading.
type ChecksumReader struct {
	r    io.Reader
	hash hash.Hash
	n    int64
}

// NewChecksumReader creates a ChecksumReader that digests everything read
// through it.
func NewChecksumReader(r io.Reader) *ChecksumReader {
	return &ChecksumReader{r: r, hash: md5.New()}
}

// Read reads data from the underlying reader and updates the digest.
func (cr *ChecksumReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.n += int64(n)
		cr.hash.Write(p[:n])
	}
	return n, err
}

// Digest returns the digest of the bytes read so far.
func (cr *ChecksumReader) Digest() Digest {
	return sumOf(cr.hash)
}

// BytesRead returns the total number of bytes read.
func (cr *ChecksumReader) BytesRead() int64 {
	return cr.n
}

// ChecksumPool manages reusable hashers to reduce allocations.
type ChecksumPool struct {
	pool sync.Pool
}

// NewChecksumPool creates a new ChecksumPool.
func NewChecksumPool() *ChecksumPool {
	return &ChecksumPool{
		pool: sync.Pool{
			New: func() any { return md5.New() },
		},
	}
}

// Get retrieves a hasher from the pool.
func (cp *ChecksumPool) Get() hash.Hash {
	return cp.pool.Get().(hash.Hash)
}

// Put returns a hasher to the pool after resetting it.
func (cp *ChecksumPool) Put(h hash.Hash) {
	h.Reset()
	cp.pool.Put(h)
}

// VerifyChecksum compares a digest against an expected value.
func VerifyChecksum(actual, expected Digest) bool {
	return actual == expected
}

// Source names a file inside a location.
type Source struct {
	Provider provider.Provider
	Path     string
}

// Verifier computes and compares content digests.
type Verifier struct {
	hashers *ChecksumPool
	buffers *BufferPool
}

// NewVerifier creates a Verifier. A nil buffer pool gets a default one.
func NewVerifier(buffers *BufferPool) *Verifier {
	if buffers == nil {
		buffers = NewBufferPool(0)
	}
	return &Verifier{hashers: NewChecksumPool(), buffers: buffers}
}

// Digest streams r to its end and returns the digest of its content.
func (v *Verifier) Digest(r io.Reader) (Digest, error) {
	h := v.hashers.Get()
	defer v.hashers.Put(h)

	buf := v.buffers.Get()
	defer v.buffers.Put(buf)

	if _, err := io.CopyBuffer(h, r, *buf); err != nil {
		return Digest{}, err
	}
	return sumOf(h), nil
}

// DigestSource opens src and digests its content.
func (v *Verifier) DigestSource(ctx context.Context, src Source) (Digest, error) {
	rc, err := src.Provider.OpenRead(ctx, src.Path)
	if err != nil {
		return Digest{}, ioError("open "+src.Path, err)
	}
	defer rc.Close()

	d, err := v.Digest(rc)
	if err != nil {
		return Digest{}, ioError("read "+src.Path, err)
	}
	return d, nil
}

// Matches reports whether a and b have identical content. Either side being
// unreadable is an ErrIO failure, never a silent false.
func (v *Verifier) Matches(ctx context.Context, a, b Source) (bool, error) {
	da, err := v.DigestSource(ctx, a)
	if err != nil {
		return false, err
	}
	db, err := v.DigestSource(ctx, b)
	if err != nil {
		return false, err
	}
	return VerifyChecksum(da, db), nil
}

// MatchFiles is Matches for two local paths.
func (v *Verifier) MatchFiles(pathA, pathB string) (bool, error) {
	local := provider.NewLocalProvider("")
	return v.Matches(context.Background(), Source{local, pathA}, Source{local, pathB})
}
