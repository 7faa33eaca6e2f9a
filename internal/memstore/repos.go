package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/JonMunkholm/listings/internal/core"
)

type cityRepo Store

func (r *cityRepo) FindCityByName(_ context.Context, name string) (*core.City, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cities {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *cityRepo) FindCityByID(_ context.Context, id uuid.UUID) (*core.City, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.cities[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (r *cityRepo) InsertCity(_ context.Context, city core.City) (*core.City, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cities {
		if c.Name == city.Name {
			return nil, fmt.Errorf("city %q: %w", city.Name, core.ErrDuplicateKey)
		}
	}
	r.cities[city.ID] = city
	return &city, nil
}

type sourceRepo Store

func (r *sourceRepo) FindSourceByURL(_ context.Context, url string) (*core.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sources {
		if s.URL == url {
			return &s, nil
		}
	}
	return nil, nil
}

func (r *sourceRepo) FindSourceByID(_ context.Context, id uuid.UUID) (*core.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sources[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (r *sourceRepo) InsertSource(_ context.Context, src core.Source) (*core.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sources {
		if s.URL == src.URL {
			return nil, fmt.Errorf("source %q: %w", src.URL, core.ErrDuplicateKey)
		}
	}
	r.sources[src.ID] = src
	return &src, nil
}

type userRepo Store

func (r *userRepo) FindUserByID(_ context.Context, id uuid.UUID) (*core.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *userRepo) FindUserByEmail(_ context.Context, email string) (*core.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *userRepo) InsertUser(_ context.Context, u core.User) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return nil, fmt.Errorf("user %q: %w", u.Email, core.ErrDuplicateKey)
		}
	}
	r.users[u.ID] = u
	return &u, nil
}

type listingRepo Store

func (r *listingRepo) InsertListing(_ context.Context, l core.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cities[l.CityID]; !ok {
		return fmt.Errorf("listing %s: city %s does not exist", l.ID, l.CityID)
	}
	if _, ok := r.sources[l.SourceID]; !ok {
		return fmt.Errorf("listing %s: source %s does not exist", l.ID, l.SourceID)
	}
	r.listings[l.ID] = l
	return nil
}

func (r *listingRepo) InsertImage(_ context.Context, img core.ListingImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listings[img.ListingID]; !ok {
		return fmt.Errorf("image %s: listing %s does not exist", img.ID, img.ListingID)
	}
	img.Data = append([]byte(nil), img.Data...)
	r.images[img.ID] = img
	return nil
}

func (r *listingRepo) GetListing(_ context.Context, id uuid.UUID) (*core.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.listings[id]; ok {
		return &l, nil
	}
	return nil, nil
}

func (r *listingRepo) ListImageIDs(_ context.Context, listingID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.RLock()
	var imgs []core.ListingImage
	for _, img := range r.images {
		if img.ListingID == listingID {
			imgs = append(imgs, img)
		}
	}
	r.mu.RUnlock()

	sort.Slice(imgs, func(i, j int) bool {
		if imgs[i].CreatedAt.Equal(imgs[j].CreatedAt) {
			return imgs[i].ID.String() < imgs[j].ID.String()
		}
		return imgs[i].CreatedAt.Before(imgs[j].CreatedAt)
	})
	ids := make([]uuid.UUID, len(imgs))
	for i, img := range imgs {
		ids[i] = img.ID
	}
	return ids, nil
}

func (r *listingRepo) GetImage(_ context.Context, listingID, imageID uuid.UUID) (*core.ListingImage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img, ok := r.images[imageID]
	if !ok || img.ListingID != listingID {
		return nil, nil
	}
	img.Data = append([]byte(nil), img.Data...)
	return &img, nil
}
