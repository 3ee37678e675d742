package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
)

const (
	descriptorExt     = ".TBL"
	bitmapExt         = ".BMP"
	descriptorVersion = 1
)

// descriptor is the small JSON file recording how a table was created, so
// it can be reopened by name alone.
type descriptor struct {
	Version  int      `json:"version"`
	Kind     Kind     `json:"-"`
	KindName string   `json:"kind"`
	TypeCode TypeCode `json:"type_code,omitempty"`
}

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }

func (e *Engine) readDescriptor(name string) (descriptor, error) {
	f, err := e.fs.OpenFile(e.path(name)+descriptorExt, os.O_RDONLY, 0)
	if err != nil {
		return descriptor{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return descriptor{}, err
	}

	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return descriptor{}, &CorruptionError{Table: name, File: name + descriptorExt, Reason: err}
	}
	if d.Version != descriptorVersion {
		return descriptor{}, &CorruptionError{Table: name, File: name + descriptorExt,
			Reason: fmt.Errorf("unsupported descriptor version %d", d.Version)}
	}
	if d.Kind, err = ParseKind(d.KindName); err != nil {
		return descriptor{}, &CorruptionError{Table: name, File: name + descriptorExt, Reason: err}
	}
	if d.Kind == KindScalar {
		if err := d.TypeCode.Validate(); err != nil {
			return descriptor{}, &CorruptionError{Table: name, File: name + descriptorExt, Reason: err}
		}
	}
	return d, nil
}

// writeDescriptor writes the descriptor through a temporary file so a crash
// never leaves a partial one behind.
func (e *Engine) writeDescriptor(name string, d descriptor) error {
	d.KindName = d.Kind.String()
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}

	path := e.path(name) + descriptorExt
	tmp := path + ".tmp"
	f, err := e.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return e.fs.Rename(tmp, path)
}

func matchDescriptor(name string, haveKind Kind, haveCode TypeCode, wantKind Kind, wantCode TypeCode) error {
	if wantKind != 0 && wantKind != haveKind {
		return fmt.Errorf("%w: table %q is a %s table", ErrTypeMismatch, name, haveKind)
	}
	if wantCode != 0 && wantCode != haveCode {
		return fmt.Errorf("%w: table %q has type code %d", ErrTypeMismatch, name, haveCode)
	}
	return nil
}

// TableInfo describes a table on disk.
type TableInfo struct {
	Name     string
	Kind     Kind
	TypeCode TypeCode
}

// List returns the tables in the engine directory, sorted by name.
func (e *Engine) List() ([]TableInfo, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	entries, err := e.fs.ReadDir(e.dir)
	if err != nil {
		return nil, err
	}
	var out []TableInfo
	for _, ent := range entries {
		name, ok := strings.CutSuffix(ent.Name(), descriptorExt)
		if !ok || ent.IsDir() {
			continue
		}
		d, err := e.readDescriptor(name)
		if err != nil {
			return nil, err
		}
		out = append(out, TableInfo{Name: name, Kind: d.Kind, TypeCode: d.TypeCode})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
