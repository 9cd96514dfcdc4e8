package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"

	"dfas-hq/dfas/pkg/evidence"
)

// ChunkSize is the read size used when streaming file content.
const ChunkSize = 64 * 1024

var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, ChunkSize)
		return &b
	},
}

// ComputeDigest returns the hex-encoded SHA-256 digest of the file at path.
// It fails with evidence.ErrUnreadablePath if the file cannot be opened or
// read to the end.
func ComputeDigest(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", evidence.NewPathError(path, "", "open", err)
	}
	defer f.Close()

	digest, _, err := HashReader(ctx, f)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", evidence.NewPathError(path, "", "read", err)
	}
	return digest, nil
}

// HashReader streams r through SHA-256 and returns the digest and the number
// of bytes read.
func HashReader(ctx context.Context, r io.Reader) (string, int64, error) {
	return hashTo(ctx, r, nil)
}

// HashBytes returns the hex-encoded SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hashTo hashes r, additionally copying every byte to extra when non-nil.
func hashTo(ctx context.Context, r io.Reader, extra io.Writer) (string, int64, error) {
	h := sha256.New()
	var w io.Writer = h
	if extra != nil {
		w = io.MultiWriter(h, extra)
	}

	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)

	n, err := io.CopyBuffer(w, &ctxReader{ctx: ctx, r: r}, *bufp)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ctxReader stops a copy between chunks once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// headBuffer keeps the first limit bytes written to it and discards the rest.
type headBuffer struct {
	buf   []byte
	limit int
}

func newHeadBuffer(limit int) *headBuffer {
	return &headBuffer{buf: make([]byte, 0, limit), limit: limit}
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if room := h.limit - len(h.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		h.buf = append(h.buf, p[:room]...)
	}
	return len(p), nil
}

func (h *headBuffer) Bytes() []byte {
	return h.buf
}
