package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/bmapdb/blobstore"
	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/conv"
	"github.com/hupe1980/bmapdb/internal/resource"
	"github.com/hupe1980/bmapdb/internal/snapshot"
	"github.com/hupe1980/bmapdb/internal/unit"
	"golang.org/x/sync/errgroup"
)

// SnapshotExt is the blob name suffix used by Backup and Restore.
const SnapshotExt = ".bmsnap"

// errSnapshotKey marks a snapshot holding a key its table cannot store.
var errSnapshotKey = errors.New("snapshot key out of range")

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Export writes a snapshot of table name to w. The table is locked only
// while its keys and values are copied; the snapshot is streamed to w after
// the lock is released. Crashed tables cannot be exported.
func (e *Engine) Export(ctx context.Context, name string, w io.Writer) error {
	sh, err := e.acquire(name, 0, 0, false)
	if err != nil {
		return err
	}
	defer e.unpin(sh)

	start := time.Now()
	cw := &countingWriter{w: resource.NewRateLimitedWriter(ctx, w, e.rc)}
	err = e.export(sh, cw)
	e.metrics.OnSnapshot("export", name, cw.n, time.Since(start), err)
	if err != nil {
		e.logger.Error("snapshot export failed", "table", name, "error", err)
		return err
	}
	e.logger.Info("snapshot exported", "table", name, "bytes", cw.n,
		"codec", e.codec, "duration", time.Since(start))
	return nil
}

// tableImage is an in-memory copy of a table's content: its keys and, for
// scalar tables, the values in ascending key order, little endian.
type tableImage struct {
	keys   *roaring64.Bitmap
	values []byte
}

// capture copies the content of sh under its lock.
func (e *Engine) capture(sh *share) (tableImage, error) {
	unlock, err := e.use(sh)
	if err != nil {
		return tableImage{}, err
	}
	defer unlock()
	if err := sh.store.Usable(); err != nil {
		return tableImage{}, err
	}

	if sh.kind != KindScalar {
		return tableImage{keys: sh.bitmap().ToRoaring()}, nil
	}
	s := sh.scalar()
	values, err := s.encodeValues()
	if err != nil {
		return tableImage{}, err
	}
	return tableImage{keys: s.presence().ToRoaring(), values: values}, nil
}

func (e *Engine) export(sh *share, w io.Writer) error {
	img, err := e.capture(sh)
	if err != nil {
		return err
	}

	sw, err := snapshot.NewWriter(w, snapshot.Header{
		Kind:     uint8(sh.kind),
		Codec:    e.codec,
		TypeCode: uint16(sh.code),
		Records:  img.keys.GetCardinality(),
	})
	if err != nil {
		return err
	}
	if err := sw.WriteBitmap(img.keys); err != nil {
		_ = sw.Close()
		return err
	}
	if len(img.values) > 0 {
		if _, err := sw.Write(img.values); err != nil {
			_ = sw.Close()
			return err
		}
	}
	return sw.Close()
}

// Import replaces the content of table name with the snapshot read from r,
// creating the table if it does not exist. An existing table must have the
// snapshot's kind and type code. The snapshot is decoded and verified before
// the table is touched, so a damaged snapshot leaves the table as it was.
func (e *Engine) Import(ctx context.Context, name string, r io.Reader) error {
	start := time.Now()
	cr := &countingReader{r: resource.NewRateLimitedReader(ctx, r, e.rc)}

	sr, err := snapshot.NewReader(cr)
	if err != nil {
		return &CorruptionError{Table: name, File: "snapshot", Reason: err}
	}
	defer func() { _ = sr.Close() }()

	h := sr.Header()
	kind := Kind(h.Kind)
	code := TypeCode(h.TypeCode)
	switch kind {
	case KindBitmap:
		code = 0
	case KindScalar:
		if err := code.Validate(); err != nil {
			return &CorruptionError{Table: name, File: "snapshot", Reason: err}
		}
	default:
		return &CorruptionError{Table: name, File: "snapshot",
			Reason: fmt.Errorf("unknown table kind %d", h.Kind)}
	}

	img, err := decodeImage(sr, kind, code)
	if err != nil {
		if isSnapshotError(err) {
			err = &CorruptionError{Table: name, File: "snapshot", Reason: err}
		}
		e.metrics.OnSnapshot("import", name, cr.n, time.Since(start), err)
		e.logger.Error("snapshot import failed", "table", name, "error", err)
		return err
	}

	sh, err := e.acquire(name, kind, code, true)
	if err != nil {
		return err
	}
	defer e.unpin(sh)

	err = e.apply(sh, img)
	e.metrics.OnSnapshot("import", name, cr.n, time.Since(start), err)
	if err != nil {
		e.logger.Error("snapshot import failed", "table", name, "error", err)
		return err
	}
	e.logger.Info("snapshot imported", "table", name, "records", h.Records,
		"bytes", cr.n, "codec", h.Codec, "duration", time.Since(start))
	return nil
}

// decodeImage reads the body of sr and verifies its checksum.
func decodeImage(sr *snapshot.Reader, kind Kind, code TypeCode) (tableImage, error) {
	keys, err := sr.ReadBitmap()
	if err != nil {
		return tableImage{}, err
	}
	img := tableImage{keys: keys}

	if !keys.IsEmpty() {
		limit := bitmap.MaxKey
		if kind == KindScalar {
			limit = min(limit, code.MaxKey())
		}
		if top := keys.Maximum(); top > limit {
			return tableImage{}, fmt.Errorf("%w: key %d above %d", errSnapshotKey, top, limit)
		}
	}

	if kind == KindScalar {
		vt, err := code.ValueType()
		if err != nil {
			return tableImage{}, err
		}
		size, err := conv.Bytes(keys.GetCardinality(), uint64(vt.Width())) //nolint:gosec // width is at most 8
		if err != nil {
			return tableImage{}, fmt.Errorf("%w: %w", errSnapshotKey, err)
		}
		// The buffer grows with the data actually read, so a header that
		// overstates the body cannot force a large allocation.
		var buf bytes.Buffer
		if _, err := io.CopyN(&buf, sr, int64(size)); err != nil {
			return tableImage{}, fmt.Errorf("values: %w", err)
		}
		img.values = buf.Bytes()
	}

	if err := sr.Verify(); err != nil {
		return tableImage{}, err
	}
	return img, nil
}

// apply replaces the content of sh with img under the table lock. On failure
// the table is left empty.
func (e *Engine) apply(sh *share, img tableImage) error {
	unlock, err := e.use(sh)
	if err != nil {
		return err
	}
	defer unlock()

	st := sh.store
	if err := st.Truncate(unit.EngineUnlocked); err != nil {
		return err
	}
	switch sh.kind {
	case KindScalar:
		err = sh.scalar().putValues(img.keys, img.values, unit.EngineUnlocked)
	default:
		err = sh.bitmap().AddRoaring(img.keys, unit.EngineUnlocked)
	}
	if err != nil {
		if terr := st.Truncate(unit.EngineUnlocked); terr != nil {
			e.logger.Warn("truncate after failed import", "table", sh.name, "error", terr)
		}
		return err
	}
	return nil
}

func isSnapshotError(err error) bool {
	for _, target := range []error{snapshot.ErrChecksum, snapshot.ErrRecords,
		snapshot.ErrBadMagic, snapshot.ErrVersion, snapshot.ErrCodec,
		errSnapshotKey, io.ErrUnexpectedEOF, io.EOF} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Backup exports the named tables, or every table if names is empty, to
// store as "<name>.bmsnap". Tables are exported in parallel on the
// background worker pool.
func (e *Engine) Backup(ctx context.Context, store blobstore.Store, names ...string) error {
	names, err := e.tableNames(names)
	if err != nil {
		return err
	}
	return e.eachName(ctx, names, func(ctx context.Context, name string) error {
		w, err := store.Create(ctx, name+SnapshotExt)
		if err != nil {
			return fmt.Errorf("backup %s: %w", name, err)
		}
		if err := e.Export(ctx, name, w); err != nil {
			_ = blobstore.Abort(w)
			return fmt.Errorf("backup %s: %w", name, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("backup %s: %w", name, err)
		}
		return nil
	})
}

// Restore imports the named tables, or every snapshot in store if names is
// empty, from their "<name>.bmsnap" blobs.
func (e *Engine) Restore(ctx context.Context, store blobstore.Store, names ...string) error {
	if len(names) == 0 {
		blobs, err := store.List(ctx, "")
		if err != nil {
			return err
		}
		for _, b := range blobs {
			if name, ok := strings.CutSuffix(b, SnapshotExt); ok {
				names = append(names, name)
			}
		}
	}
	return e.eachName(ctx, names, func(ctx context.Context, name string) error {
		b, err := store.Open(ctx, name+SnapshotExt)
		if err != nil {
			return fmt.Errorf("restore %s: %w", name, err)
		}
		defer func() { _ = b.Close() }()

		rc, err := b.ReadRange(ctx, 0, b.Size())
		if err != nil {
			return fmt.Errorf("restore %s: %w", name, err)
		}
		defer func() { _ = rc.Close() }()

		if err := e.Import(ctx, name, rc); err != nil {
			return fmt.Errorf("restore %s: %w", name, err)
		}
		return nil
	})
}

func (e *Engine) tableNames(names []string) ([]string, error) {
	if len(names) > 0 {
		return names, nil
	}
	infos, err := e.List()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out, nil
}

func (e *Engine) eachName(ctx context.Context, names []string, fn func(ctx context.Context, name string) error) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		if err := e.rc.AcquireBackground(ctx); err != nil {
			break
		}
		g.Go(func() error {
			defer e.rc.ReleaseBackground()
			return fn(ctx, name)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Drop deletes the files of table name. The table must not be open.
func (e *Engine) Drop(name string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.shares[name]; ok {
		return fmt.Errorf("%w: %s", ErrTableBusy, name)
	}
	desc, err := e.readDescriptor(name)
	if err != nil {
		if isNotExist(err) {
			return fmt.Errorf("%w: table %q", ErrNotFound, name)
		}
		return err
	}
	st, err := e.construct(name, desc.Kind, desc.TypeCode)
	if err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if err := st.Drop(unit.EngineLocked); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if err := e.fs.Remove(e.path(name) + descriptorExt); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	e.logger.Info("table dropped", "table", name, "kind", desc.Kind)
	return nil
}

// FindByChecksum returns a new handle to the table with checksum id. Only
// externally locked tables can be found.
func (e *Engine) FindByChecksum(id uint32) (Table, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	sh, ok := e.byID[id]
	if ok {
		sh.refs++
	}
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: checksum %d", ErrNotFound, id)
	}

	st := sh.store
	st.Lock()
	found := !sh.dead && st.ELocked() && st.ID() == id
	st.Unlock()
	if !found {
		e.unpin(sh)
		return nil, fmt.Errorf("%w: checksum %d", ErrNotFound, id)
	}

	if sh.kind == KindScalar {
		return &ScalarTable{table: table{e: e, sh: sh}}, nil
	}
	return &BitmapTable{table: table{e: e, sh: sh}}, nil
}
