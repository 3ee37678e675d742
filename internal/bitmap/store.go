package bitmap

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/google/uuid"
	"github.com/hupe1980/bmapdb/internal/fs"
	"github.com/hupe1980/bmapdb/internal/mmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

const (
	// ChunkWords is the growth granularity of the word array.
	ChunkWords = 2 * 8 * 1024
	// ChunkBytes is the growth granularity of the backing file.
	ChunkBytes = ChunkWords * 8

	wordShift = 6
	wordMask  = 63
)

// NotFound is returned by Next and Prev when no key exists and is the
// MaxValue of an empty store.
const NotFound uint64 = math.MaxUint64

// MaxKey is the highest key a store accepts. It caps the backing file at
// 128 GiB.
const MaxKey uint64 = 1<<40 - 1

// maxWords bounds the word array so its byte size fits in an int.
const maxWords = math.MaxInt / 8

var (
	// ErrSizeMismatch marks a backing file whose length is not a multiple of
	// ChunkBytes.
	ErrSizeMismatch = errors.New("bitmap: file size is not a multiple of the chunk size")
	// ErrCountMismatch is reported by Check when the record count disagrees
	// with the population count of the words.
	ErrCountMismatch = errors.New("bitmap: record count does not match population")
	// ErrKeyTooLarge is returned for keys above MaxKey or whose word does
	// not fit in memory.
	ErrKeyTooLarge = errors.New("bitmap: key too large")
)

// Store is a bitmap store. See the package documentation for the layout.
type Store struct {
	*unit.Unit

	region   *mmap.Region
	words    []uint64
	maxValue uint64
}

// Open opens the file-backed bitmap at path and loads it. A file with a
// misaligned size yields a crashed store, not an error; check Usable.
func Open(fsys fs.FileSystem, name, path string, acct unit.Accountant, ls unit.LockState) (*Store, error) {
	s := &Store{
		Unit:     unit.New(name, acct),
		region:   mmap.NewFile(fsys, path),
		maxValue: NotFound,
	}
	if err := s.load(ls); err != nil {
		return nil, err
	}
	return s, nil
}

// NewAnon creates an empty heap-backed bitmap. Anonymous bitmaps are never
// persisted and lose their content on hibernation.
func NewAnon(acct unit.Accountant) *Store {
	return &Store{
		Unit:     unit.New("anon-"+uuid.NewString(), acct),
		region:   mmap.NewAnon(),
		maxValue: NotFound,
	}
}

// Path returns the backing file path, empty for anonymous stores.
func (s *Store) Path() string { return s.region.Path() }

// MaxValue returns the highest set key, or NotFound if the store is empty.
func (s *Store) MaxValue() uint64 { return s.maxValue }

// Words returns the current length of the word array.
func (s *Store) Words() int { return len(s.words) }

func (s *Store) load(ls unit.LockState) error {
	if err := s.Map(s.region, ls); err != nil {
		s.MarkCrashed(err)
		return err
	}
	s.SetHibernated(false)
	s.MarkLoaded()

	if n := s.region.Len(); n%ChunkBytes != 0 {
		s.MarkCrashed(fmt.Errorf("%w: %s has %d bytes", ErrSizeMismatch, s.region.Path(), n))
		s.words = nil
		s.maxValue = NotFound
		s.SetRecords(0)
		return s.Unmap(s.region, ls)
	}

	s.words = mmap.View[uint64](s.region.Bytes())
	s.recount()
	return nil
}

// recount recomputes the record count and max value from the words.
func (s *Store) recount() {
	_ = s.region.Advise(mmap.AccessSequential)
	defer func() { _ = s.region.Advise(mmap.AccessDefault) }()

	var n uint64
	s.maxValue = NotFound
	for i, w := range s.words {
		if w != 0 {
			n += uint64(bits.OnesCount64(w))
			s.maxValue = uint64(i)<<wordShift + uint64(63-bits.LeadingZeros64(w))
		}
	}
	s.SetRecords(n)
}

// Test reports whether key is set. A crashed store reports every key unset.
func (s *Store) Test(key uint64) bool {
	w := key >> wordShift
	if w >= uint64(len(s.words)) {
		return false
	}
	return s.words[w]&(1<<(key&wordMask)) != 0
}

// Set sets key, growing the word array if needed, and reports whether the
// key was previously clear. Keys above MaxKey are rejected before anything
// is resized.
func (s *Store) Set(key uint64, ls unit.LockState) (bool, error) {
	if err := s.Usable(); err != nil {
		return false, err
	}
	if key > MaxKey {
		return false, fmt.Errorf("%w: %d", ErrKeyTooLarge, key)
	}
	w := key >> wordShift
	if w >= uint64(len(s.words)) {
		if err := s.Reallocate(key, ls); err != nil {
			return false, err
		}
	}
	bit := uint64(1) << (key & wordMask)
	if s.words[w]&bit != 0 {
		return false, nil
	}
	s.words[w] |= bit
	s.SetRecords(s.Records() + 1)
	s.MarkDirty()
	if s.maxValue == NotFound || key > s.maxValue {
		s.maxValue = key
	}
	return true, nil
}

// Unset clears key and reports whether it was set. Clearing the highest key
// recomputes MaxValue and may shrink the word array.
func (s *Store) Unset(key uint64, ls unit.LockState) (bool, error) {
	if err := s.Usable(); err != nil {
		return false, err
	}
	w := key >> wordShift
	if w >= uint64(len(s.words)) {
		return false, nil
	}
	bit := uint64(1) << (key & wordMask)
	if s.words[w]&bit == 0 {
		return false, nil
	}
	s.words[w] &^= bit
	s.SetRecords(s.Records() - 1)
	s.MarkDirty()
	if key == s.maxValue {
		s.maxValue = s.Prev(key)
		if err := s.Reallocate(s.maxValue, ls); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Reallocate sizes the word array to the chunk holding newMax. NotFound
// releases the array, which is only legal for an empty store.
//
// A failed resize that keeps the old mapping leaves the store usable. The
// store is marked crashed only when the mapping was lost.
func (s *Store) Reallocate(newMax uint64, ls unit.LockState) error {
	var words uint64
	if newMax == NotFound {
		if s.Records() > 0 {
			err := fmt.Errorf("bitmap %s: release with %d records", s.Name(), s.Records())
			s.MarkCrashed(err)
			return err
		}
	} else {
		if newMax > MaxKey {
			return fmt.Errorf("%w: %d", ErrKeyTooLarge, newMax)
		}
		words = ((newMax>>wordShift)/ChunkWords + 1) * ChunkWords
		if words > maxWords {
			return fmt.Errorf("%w: %d", ErrKeyTooLarge, newMax)
		}
	}

	old := s.region.Len()
	err := s.Resize(s.region, int(words)*8, ls)
	s.words = mmap.View[uint64](s.region.Bytes())
	if err != nil {
		if s.region.Len() != old {
			s.MarkCrashed(err)
		}
		return err
	}
	return nil
}

// Next returns the smallest set key greater than from, or NotFound. Passing
// NotFound starts at key 0.
func (s *Store) Next(from uint64) uint64 {
	if s.maxValue == NotFound {
		return NotFound
	}
	if from != NotFound && from >= s.maxValue {
		return NotFound
	}
	start := from + 1 // NotFound wraps to 0
	w := start >> wordShift
	last := s.maxValue >> wordShift
	word := s.words[w] & (^uint64(0) << (start & wordMask))
	for {
		if word != 0 {
			return w<<wordShift + uint64(bits.TrailingZeros64(word))
		}
		w++
		if w > last {
			return NotFound
		}
		word = s.words[w]
	}
}

// Prev returns the largest set key smaller than from, or NotFound. Passing
// NotFound, or any key past MaxValue, starts at MaxValue.
func (s *Store) Prev(from uint64) uint64 {
	if s.maxValue == NotFound || from == 0 {
		return NotFound
	}
	start := from - 1
	if from == NotFound || start > s.maxValue {
		start = s.maxValue
	}
	w := start >> wordShift
	word := s.words[w] & (^uint64(0) >> (wordMask - start&wordMask))
	for {
		if word != 0 {
			return w<<wordShift + uint64(63-bits.LeadingZeros64(word))
		}
		if w == 0 {
			return NotFound
		}
		w--
		word = s.words[w]
	}
}

// First returns the smallest set key, or NotFound.
func (s *Store) First() uint64 { return s.Next(NotFound) }

// Last returns the largest set key, or NotFound.
func (s *Store) Last() uint64 { return s.maxValue }

// Truncate clears every key and releases the word array.
func (s *Store) Truncate(ls unit.LockState) error {
	if s.words == nil && s.Records() == 0 {
		s.maxValue = NotFound
		return nil
	}
	clear(s.words)
	s.SetRecords(0)
	s.maxValue = NotFound
	s.MarkDirty()
	return s.Reallocate(NotFound, ls)
}

// Hibernate releases the mapping. It is a no-op on a hibernated store.
func (s *Store) Hibernate(ls unit.LockState) error {
	if s.Hibernated() {
		return nil
	}
	s.words = nil
	s.SetHibernated(true)
	s.ClearDirty()
	return s.Unmap(s.region, ls)
}

// Wakeup reloads the mapping and revalidates the file size. It is a no-op
// on a store that is not hibernated.
func (s *Store) Wakeup(ls unit.LockState) error {
	if !s.Hibernated() {
		return nil
	}
	return s.load(ls)
}

// Sync flushes the mapping to the backing file.
func (s *Store) Sync() error {
	if err := s.region.Sync(); err != nil {
		return err
	}
	s.ClearDirty()
	return nil
}

// Close releases the mapping for good. The backing file is kept.
func (s *Store) Close(ls unit.LockState) error {
	s.words = nil
	return s.Unmap(s.region, ls)
}

// Remove releases the mapping and deletes the backing file.
func (s *Store) Remove(ls unit.LockState) error {
	if err := s.Close(ls); err != nil {
		return err
	}
	return s.region.Remove()
}
