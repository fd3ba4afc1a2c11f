package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/zombor/receipt-wallet/internal/kv"
)

var (
	// ErrNotFound is returned when no receipt has the requested ID.
	ErrNotFound = errors.New("receipt not found")

	// ErrInvalid is returned when a receipt breaks a data model rule.
	ErrInvalid = errors.New("invalid receipt")
)

// StorageError reports a serialization or persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s receipts: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store is the persisted receipt list. The whole list lives under a single
// key and is rewritten on every mutation; mutations are serialized.
type Store struct {
	mu     sync.Mutex
	db     kv.Store
	list   List
	loaded bool
}

// NewStore creates a Store backed by db
func NewStore(db kv.Store) *Store {
	return &Store{db: db}
}

// LoadAll reads the persisted list. A missing blob yields an empty list.
func (s *Store) LoadAll() (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(); err != nil {
		return nil, err
	}
	return s.list.clone(), nil
}

// Get returns a single receipt
func (s *Store) Get(id string) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return Receipt{}, err
	}
	r, ok := s.list.Find(id)
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// Append prepends r and persists the full list. The in-memory list only
// changes once the write has succeeded.
func (s *Store) Append(r Receipt) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	r.ShopName = strings.TrimSpace(r.ShopName)
	if err := validate(r); err != nil {
		return nil, err
	}
	if _, exists := s.list.Find(r.ID); exists {
		return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalid, r.ID)
	}

	next := make(List, 0, len(s.list)+1)
	next = append(next, r)
	next = append(next, s.list...)

	if err := s.write(next); err != nil {
		return nil, err
	}
	s.list = next
	return s.list.clone(), nil
}

// Remove deletes the receipt with the given ID and persists the full list.
// The referenced image file is left alone.
func (s *Store) Remove(id string) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	if _, ok := s.list.Find(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := make(List, 0, len(s.list))
	for _, r := range s.list {
		if r.ID != id {
			next = append(next, r)
		}
	}

	if err := s.write(next); err != nil {
		return nil, err
	}
	s.list = next
	return s.list.clone(), nil
}

func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	return s.reload()
}

func (s *Store) reload() error {
	data, err := s.db.Get(kv.KeyReceipts)
	if errors.Is(err, kv.ErrNotFound) {
		s.list = List{}
		s.loaded = true
		return nil
	}
	if err != nil {
		return &StorageError{Op: "reading", Err: err}
	}

	var list List
	if err := json.Unmarshal(data, &list); err != nil {
		return &StorageError{Op: "decoding", Err: err}
	}
	if list == nil {
		list = List{}
	}
	s.list = list
	s.loaded = true
	return nil
}

func (s *Store) write(list List) error {
	data, err := json.Marshal(list)
	if err != nil {
		return &StorageError{Op: "encoding", Err: err}
	}
	if err := s.db.Put(kv.KeyReceipts, data); err != nil {
		return &StorageError{Op: "writing", Err: err}
	}
	return nil
}

func validate(r Receipt) error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalid)
	case r.ShopName == "":
		return fmt.Errorf("%w: missing shop name", ErrInvalid)
	case math.IsNaN(r.TotalAmount) || math.IsInf(r.TotalAmount, 0):
		return fmt.Errorf("%w: amount is not a number", ErrInvalid)
	case r.TotalAmount < 0:
		return fmt.Errorf("%w: negative amount", ErrInvalid)
	}
	return nil
}
