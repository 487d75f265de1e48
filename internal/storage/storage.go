package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/fwslurp/internal/catalog"
)

// Fixed object names inside an entry prefix.
const (
	PayloadName  = "PS3UPDAT.PUP"
	ChecksumName = "md5.txt"
)

// Error reports a failed storage operation.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Store addresses entries by (section, version) inside a bucket.
type Store struct {
	bucket *blob.Bucket
	owned  bool
}

// Open opens the bucket at destination. The returned Store owns the bucket
// and closes it in Close.
func Open(ctx context.Context, destination string) (*Store, error) {
	if destination == "" {
		return nil, &Error{Op: "open", Err: errors.New("no destination given")}
	}

	var (
		bucket *blob.Bucket
		err    error
	)
	if strings.Contains(destination, "://") {
		bucket, err = blob.OpenBucket(ctx, destination)
	} else {
		bucket, err = fileblob.OpenBucket(destination, &fileblob.Options{
			CreateDir: true,
			Metadata:  fileblob.MetadataDontWrite,
		})
	}
	if err != nil {
		return nil, &Error{Op: "open", Key: destination, Err: err}
	}

	return &Store{bucket: bucket, owned: true}, nil
}

// New wraps an already opened bucket. Close leaves the bucket open.
func New(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Close releases the bucket if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.bucket.Close()
}

// EntryPrefix returns the key prefix shared by an entry's objects.
func EntryPrefix(e catalog.Entry) string {
	return path.Join(e.Section.Dir(), e.Version) + "/"
}

// PayloadKey returns the key of the entry's payload.
func PayloadKey(e catalog.Entry) string {
	return EntryPrefix(e) + PayloadName
}

// ChecksumKey returns the key of the entry's checksum sidecar.
func ChecksumKey(e catalog.Entry) string {
	return EntryPrefix(e) + ChecksumName
}

// PayloadWriter streams one payload into the bucket.
type PayloadWriter struct {
	key    string
	w      *blob.Writer
	cancel context.CancelFunc
	done   bool
}

// OpenPayload starts a new payload write for e, replacing any existing
// payload once committed.
func (s *Store) OpenPayload(ctx context.Context, e catalog.Entry) (*PayloadWriter, error) {
	key := PayloadKey(e)

	// Cancelling the writer's context before Close aborts the write.
	wctx, cancel := context.WithCancel(ctx)
	w, err := s.bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		cancel()
		return nil, &Error{Op: "open payload", Key: key, Err: err}
	}

	return &PayloadWriter{key: key, w: w, cancel: cancel}, nil
}

func (p *PayloadWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if err != nil {
		return n, &Error{Op: "write payload", Key: p.key, Err: err}
	}
	return n, nil
}

// Commit finishes the write and makes the payload visible.
func (p *PayloadWriter) Commit() error {
	if p.done {
		return nil
	}
	p.done = true
	defer p.cancel()

	if err := p.w.Close(); err != nil {
		return &Error{Op: "commit payload", Key: p.key, Err: err}
	}
	return nil
}

// Abort discards everything written so far.
func (p *PayloadWriter) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	p.cancel()

	// Close on a cancelled writer reports the cancellation; that is the
	// expected outcome of an abort.
	if err := p.w.Close(); err != nil && gcerrors.Code(err) != gcerrors.Canceled && !errors.Is(err, context.Canceled) {
		return &Error{Op: "abort payload", Key: p.key, Err: err}
	}
	return nil
}

// WriteChecksum stores the entry's checksum verbatim in its sidecar.
func (s *Store) WriteChecksum(ctx context.Context, e catalog.Entry) error {
	key := ChecksumKey(e)
	if err := s.bucket.WriteAll(ctx, key, []byte(e.Checksum), &blob.WriterOptions{
		ContentType: "text/plain; charset=utf-8",
	}); err != nil {
		return &Error{Op: "write checksum", Key: key, Err: err}
	}
	return nil
}

// ReadChecksum returns the sidecar contents for e.
func (s *Store) ReadChecksum(ctx context.Context, e catalog.Entry) (string, error) {
	key := ChecksumKey(e)
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return "", &Error{Op: "read checksum", Key: key, Err: err}
	}
	return string(data), nil
}

// OpenPayloadReader opens the stored payload for reading.
func (s *Store) OpenPayloadReader(ctx context.Context, e catalog.Entry) (io.ReadCloser, error) {
	key := PayloadKey(e)
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, &Error{Op: "read payload", Key: key, Err: err}
	}
	return r, nil
}

// RemovePayload deletes the payload of e. A missing payload is not an error.
func (s *Store) RemovePayload(ctx context.Context, e catalog.Entry) error {
	return s.remove(ctx, PayloadKey(e))
}

// Remove deletes both the payload and the sidecar of e.
func (s *Store) Remove(ctx context.Context, e catalog.Entry) error {
	if err := s.remove(ctx, PayloadKey(e)); err != nil {
		return err
	}
	return s.remove(ctx, ChecksumKey(e))
}

func (s *Store) remove(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return &Error{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Inspection describes what is stored for one entry.
type Inspection struct {
	Entry          catalog.Entry
	HasPayload     bool
	HasChecksum    bool
	PayloadSize    int64
	StoredChecksum string

	// Verified is set only when the payload was hashed; ChecksumMatch is
	// meaningful only when Verified is true.
	Verified      bool
	ChecksumMatch bool
}

// Complete reports whether both payload and sidecar exist and, if verified,
// agree with each other.
func (i Inspection) Complete() bool {
	if !i.HasPayload || !i.HasChecksum {
		return false
	}
	return !i.Verified || i.ChecksumMatch
}

// Inspect checks what is stored for e. With verify set, the payload is
// hashed with MD5 and compared against the sidecar.
func (s *Store) Inspect(ctx context.Context, e catalog.Entry, verify bool) (Inspection, error) {
	in := Inspection{Entry: e}

	attrs, err := s.bucket.Attributes(ctx, PayloadKey(e))
	switch {
	case err == nil:
		in.HasPayload = true
		in.PayloadSize = attrs.Size
	case gcerrors.Code(err) != gcerrors.NotFound:
		return in, &Error{Op: "stat payload", Key: PayloadKey(e), Err: err}
	}

	sum, err := s.ReadChecksum(ctx, e)
	switch {
	case err == nil:
		in.HasChecksum = true
		in.StoredChecksum = strings.TrimSpace(sum)
	case gcerrors.Code(err) != gcerrors.NotFound:
		return in, err
	}

	if !verify || !in.HasPayload || !in.HasChecksum {
		return in, nil
	}

	r, err := s.OpenPayloadReader(ctx, e)
	if err != nil {
		return in, err
	}
	defer r.Close()

	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return in, &Error{Op: "hash payload", Key: PayloadKey(e), Err: err}
	}
	in.Verified = true
	in.ChecksumMatch = strings.EqualFold(hex.EncodeToString(h.Sum(nil)), in.StoredChecksum)
	return in, nil
}
