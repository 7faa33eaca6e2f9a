// Package memstore is an in-memory core.Store used by tests and by the
// "memory" storage driver for local development.
//
// Individual repository calls are atomic. Transactions are serialized: InTx
// holds a store-wide transaction lock, snapshots the data and restores the
// snapshot when fn fails. AddUser and GrantAdmin wait for open transactions;
// repository calls made outside InTx while a transaction is open are not
// isolated from it.
package memstore

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/listings/internal/core"
)

// Store holds every table in maps guarded by one mutex.
type Store struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	cities   map[uuid.UUID]core.City
	sources  map[uuid.UUID]core.Source
	users    map[uuid.UUID]core.User
	listings map[uuid.UUID]core.Listing
	images   map[uuid.UUID]core.ListingImage
}

// New creates an empty store.
func New() *Store {
	return &Store{
		cities:   make(map[uuid.UUID]core.City),
		sources:  make(map[uuid.UUID]core.Source),
		users:    make(map[uuid.UUID]core.User),
		listings: make(map[uuid.UUID]core.Listing),
		images:   make(map[uuid.UUID]core.ListingImage),
	}
}

// Repos returns repositories backed by the store.
func (s *Store) Repos() core.Repositories {
	return core.Repositories{
		Cities:   (*cityRepo)(s),
		Sources:  (*sourceRepo)(s),
		Users:    (*userRepo)(s),
		Listings: (*listingRepo)(s),
	}
}

// InTx runs fn with the transaction lock held and rolls back on error.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repos core.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	if err := fn(ctx, s.Repos()); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	cities   map[uuid.UUID]core.City
	sources  map[uuid.UUID]core.Source
	users    map[uuid.UUID]core.User
	listings map[uuid.UUID]core.Listing
	images   map[uuid.UUID]core.ListingImage
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		cities:   maps.Clone(s.cities),
		sources:  maps.Clone(s.sources),
		users:    maps.Clone(s.users),
		listings: maps.Clone(s.listings),
		images:   maps.Clone(s.images),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cities = snap.cities
	s.sources = snap.sources
	s.users = snap.users
	s.listings = snap.listings
	s.images = snap.images
}

// AddUser inserts or replaces a user. Used to seed administrators.
// It waits for any open transaction so a rollback cannot drop the user.
func (s *Store) AddUser(u core.User) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// GrantAdmin marks the user with email as an administrator, creating the
// user when none exists. Like AddUser it is serialized with transactions.
func (s *Store) GrantAdmin(ctx context.Context, email string) (*core.User, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range s.users {
		if u.Email == email {
			u.IsAdmin = true
			s.users[id] = u
			return &u, nil
		}
	}
	u := core.User{ID: uuid.New(), Email: email, IsAdmin: true, CreatedAt: time.Now().UTC()}
	s.users[u.ID] = u
	return &u, nil
}

// Counts reports the number of rows per table.
type Counts struct {
	Cities   int
	Sources  int
	Users    int
	Listings int
	Images   int
}

// Counts returns the current row counts.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		Cities:   len(s.cities),
		Sources:  len(s.sources),
		Users:    len(s.users),
		Listings: len(s.listings),
		Images:   len(s.images),
	}
}

// Cities returns all cities sorted by name.
func (s *Store) Cities() []core.City {
	s.mu.RLock()
	out := make([]core.City, 0, len(s.cities))
	for _, c := range s.cities {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListingsByTitle returns stored listings keyed by title.
func (s *Store) ListingsByTitle() map[string]core.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]core.Listing, len(s.listings))
	for _, l := range s.listings {
		out[l.Title] = l
	}
	return out
}
