package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/coldwave/flake-go/pkg/wire"
)

// StateVersion is the current version of the snapshot format.
const StateVersion = 1

// ErrUnsupportedVersion is returned for snapshots written by a newer
// format.
var ErrUnsupportedVersion = errors.New("persistence: unsupported snapshot version")

// RouterState is the snapshot written on saveChanges.
type RouterState struct {
	// Version is the snapshot format version.
	Version int `cbor:"1,keyasint"`

	// SavedAt is when the snapshot was taken.
	SavedAt time.Time `cbor:"2,keyasint"`

	// Objects holds the router-hosted objects in address order.
	Objects []ObjectRecord `cbor:"3,keyasint,omitempty"`
}

// ObjectRecord is one saved object.
type ObjectRecord struct {
	Addr          uint16    `cbor:"1,keyasint"`
	BroadcastAddr uint16    `cbor:"2,keyasint"`
	Type          []byte    `cbor:"3,keyasint"`
	UUID          []byte    `cbor:"4,keyasint,omitempty"`
	CreatedAt     time.Time `cbor:"5,keyasint,omitempty"`

	// Properties is the property table in flake wire encoding.
	Properties []byte `cbor:"6,keyasint,omitempty"`
}

// NewObjectRecord encodes one object for a snapshot.
func NewObjectRecord(addr, bcast wire.Addr, typ, id wire.UniqueID, created time.Time, props wire.PropArray) (ObjectRecord, error) {
	data, err := wire.MarshalPropArray(props)
	if err != nil {
		return ObjectRecord{}, fmt.Errorf("object %s: %w", addr, err)
	}
	rec := ObjectRecord{
		Addr:          uint16(addr),
		BroadcastAddr: uint16(bcast),
		Type:          typ.Bytes(),
		CreatedAt:     created,
		Properties:    data,
	}
	if !id.IsNil() {
		rec.UUID = id.Bytes()
	}
	return rec, nil
}

// ObjectType decodes the saved object type.
func (r ObjectRecord) ObjectType() (wire.UniqueID, error) {
	return wire.UniqueIDFromBytes(r.Type)
}

// ObjectUUID decodes the saved object id, NilID when none was saved.
func (r ObjectRecord) ObjectUUID() (wire.UniqueID, error) {
	if len(r.UUID) == 0 {
		return wire.NilID, nil
	}
	return wire.UniqueIDFromBytes(r.UUID)
}

// PropArray decodes the saved property table.
func (r ObjectRecord) PropArray() (wire.PropArray, error) {
	if len(r.Properties) == 0 {
		return wire.PropArray{}, nil
	}
	return wire.UnmarshalPropArray(r.Properties)
}

// Store reads and writes a snapshot file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// Save writes state to disk. The file is replaced atomically.
func (s *Store) Save(state *RouterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := cbor.Marshal(state)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the snapshot from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *Store) Load() (*RouterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &RouterState{}
	if err := cbor.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, state.Version)
	}
	return state, nil
}

// Clear removes the snapshot file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
