package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReferenceResolver maps natural keys to reference ids, creating rows on
// first use. It always reads through to the repositories; nothing is cached,
// so a row created by a concurrent import is visible on the next call.
//
// Lookup and insert are separate steps. When two callers race on the same
// unseen key, the unique index rejects the loser's insert with
// ErrDuplicateKey and the loser re-reads the winner's row.
type ReferenceResolver struct {
	cities   CityRepository
	sources  SourceRepository
	users    UserRepository
	cityName func(string) string
	now      func() time.Time
}

// NewReferenceResolver creates a resolver over repos. cityName normalizes
// city names before lookup; nil trims surrounding whitespace only.
func NewReferenceResolver(repos Repositories, cityName func(string) string) *ReferenceResolver {
	if cityName == nil {
		cityName = strings.TrimSpace
	}
	return &ReferenceResolver{
		cities:   repos.Cities,
		sources:  repos.Sources,
		users:    repos.Users,
		cityName: cityName,
		now:      time.Now,
	}
}

// ResolveCity returns the id of the city with the given name.
func (r *ReferenceResolver) ResolveCity(ctx context.Context, name string) (uuid.UUID, error) {
	name = r.cityName(name)
	if name == "" {
		return uuid.Nil, &ValidationError{Field: "cityName", Message: "city name is required"}
	}

	find := func() (uuid.UUID, bool, error) {
		c, err := r.cities.FindCityByName(ctx, name)
		if err != nil || c == nil {
			return uuid.Nil, false, err
		}
		return c.ID, true, nil
	}
	insert := func() (uuid.UUID, error) {
		c, err := r.cities.InsertCity(ctx, City{ID: uuid.New(), Name: name, CreatedAt: r.now()})
		if err != nil {
			return uuid.Nil, err
		}
		return c.ID, nil
	}
	return findOrCreate("resolve city", find, insert)
}

// ResolveSource returns the id of the source keyed by url. An empty url is
// replaced by the natural key derived from name.
func (r *ReferenceResolver) ResolveSource(ctx context.Context, name, url string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if url == "" {
		if name == "" {
			return uuid.Nil, &ValidationError{Field: "sourceName", Message: "source name is required"}
		}
		url = SourceURLForName(name)
	}
	if name == "" {
		name = url
	}

	find := func() (uuid.UUID, bool, error) {
		s, err := r.sources.FindSourceByURL(ctx, url)
		if err != nil || s == nil {
			return uuid.Nil, false, err
		}
		return s.ID, true, nil
	}
	insert := func() (uuid.UUID, error) {
		s, err := r.sources.InsertSource(ctx, Source{ID: uuid.New(), Name: name, URL: url, CreatedAt: r.now()})
		if err != nil {
			return uuid.Nil, err
		}
		return s.ID, nil
	}
	return findOrCreate("resolve source", find, insert)
}

// ResolveOwner returns the owning user's id. A nil ref means the caller owns
// the listing. Users created here are never administrators.
func (r *ReferenceResolver) ResolveOwner(ctx context.Context, ref *UserRef, caller uuid.UUID) (uuid.UUID, error) {
	if ref == nil || strings.TrimSpace(ref.Email) == "" {
		return caller, nil
	}
	email := strings.ToLower(strings.TrimSpace(ref.Email))

	find := func() (uuid.UUID, bool, error) {
		u, err := r.users.FindUserByEmail(ctx, email)
		if err != nil || u == nil {
			return uuid.Nil, false, err
		}
		return u.ID, true, nil
	}
	insert := func() (uuid.UUID, error) {
		u, err := r.users.InsertUser(ctx, User{
			ID:         uuid.New(),
			Email:      email,
			FirstName:  ref.FirstName,
			LastName:   ref.LastName,
			MiddleName: ref.MiddleName,
			CreatedAt:  r.now(),
		})
		if err != nil {
			return uuid.Nil, err
		}
		return u.ID, nil
	}
	return findOrCreate("resolve owner", find, insert)
}

// findOrCreate looks the key up, inserts on a miss and re-reads when the
// insert lost a race on the unique key.
func findOrCreate(op string, find func() (uuid.UUID, bool, error), insert func() (uuid.UUID, error)) (uuid.UUID, error) {
	id, ok, err := find()
	if err != nil {
		return uuid.Nil, persistErr(op, err)
	}
	if ok {
		return id, nil
	}

	id, err = insert()
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrDuplicateKey) {
		return uuid.Nil, persistErr(op, err)
	}

	id, ok, err = find()
	if err != nil {
		return uuid.Nil, persistErr(op, err)
	}
	if !ok {
		return uuid.Nil, &PersistenceError{Op: op, Err: errors.New("row vanished after unique conflict")}
	}
	return id, nil
}
