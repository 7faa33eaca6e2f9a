package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/listings/internal/core"
)

func TestInTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, repos core.Repositories) error {
		_, err := repos.Cities.InsertCity(ctx, core.City{ID: uuid.New(), Name: "Omsk"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Counts().Cities)

	err = s.InTx(ctx, func(ctx context.Context, repos core.Repositories) error {
		_, err := repos.Cities.InsertCity(ctx, core.City{ID: uuid.New(), Name: "Omsk"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Counts().Cities)
}

func TestInTx_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(context.Context, core.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestInsert_DuplicateKeys(t *testing.T) {
	s := New()
	ctx := context.Background()
	repos := s.Repos()

	_, err := repos.Cities.InsertCity(ctx, core.City{ID: uuid.New(), Name: "Omsk"})
	require.NoError(t, err)
	_, err = repos.Cities.InsertCity(ctx, core.City{ID: uuid.New(), Name: "Omsk"})
	assert.ErrorIs(t, err, core.ErrDuplicateKey)

	_, err = repos.Sources.InsertSource(ctx, core.Source{ID: uuid.New(), Name: "Avito", URL: core.AvitoSourceURL})
	require.NoError(t, err)
	_, err = repos.Sources.InsertSource(ctx, core.Source{ID: uuid.New(), Name: "Other", URL: core.AvitoSourceURL})
	assert.ErrorIs(t, err, core.ErrDuplicateKey)

	_, err = repos.Users.InsertUser(ctx, core.User{ID: uuid.New(), Email: "a@example.com"})
	require.NoError(t, err)
	_, err = repos.Users.InsertUser(ctx, core.User{ID: uuid.New(), Email: "a@example.com"})
	assert.ErrorIs(t, err, core.ErrDuplicateKey)

	assert.Equal(t, Counts{Cities: 1, Sources: 1, Users: 1}, s.Counts())
}

func TestListings_ImagesAndLookups(t *testing.T) {
	s := New()
	ctx := context.Background()
	repos := s.Repos()

	city, err := repos.Cities.InsertCity(ctx, core.City{ID: uuid.New(), Name: "Omsk"})
	require.NoError(t, err)
	src, err := repos.Sources.InsertSource(ctx, core.Source{ID: uuid.New(), Name: "Avito", URL: core.AvitoSourceURL})
	require.NoError(t, err)

	assert.Error(t, repos.Listings.InsertListing(ctx, core.Listing{ID: uuid.New(), Title: "Orphan"}),
		"listings need an existing city and source")

	listingID := uuid.New()
	require.NoError(t, repos.Listings.InsertListing(ctx, core.Listing{
		ID: listingID, Title: "Flat", CityID: city.ID, SourceID: src.ID,
	}))

	ids, err := repos.Listings.ListImageIDs(ctx, listingID)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)

	imageID := uuid.New()
	require.NoError(t, repos.Listings.InsertImage(ctx, core.ListingImage{
		ID: imageID, ListingID: listingID, Data: []byte("png"), CreatedAt: time.Now(),
	}))

	img, err := repos.Listings.GetImage(ctx, listingID, imageID)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, []byte("png"), img.Data)

	img, err = repos.Listings.GetImage(ctx, uuid.New(), imageID)
	require.NoError(t, err)
	assert.Nil(t, img, "image lookups are scoped to their listing")

	missing, err := repos.Listings.GetListing(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGrantAdmin(t *testing.T) {
	s := New()
	ctx := context.Background()
	member := core.User{ID: uuid.New(), Email: "member@example.com"}
	s.AddUser(member)

	u, err := s.GrantAdmin(ctx, "member@example.com")
	require.NoError(t, err)
	assert.Equal(t, member.ID, u.ID)
	assert.True(t, u.IsAdmin)

	stored, err := s.Repos().Users.FindUserByID(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAdmin)

	created, err := s.GrantAdmin(ctx, "new@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, member.ID, created.ID)
	assert.Equal(t, 2, s.Counts().Users)
}

func TestGrantAdmin_SurvivesConcurrentRollback(t *testing.T) {
	s := New()
	ctx := context.Background()
	granted := make(chan error, 1)

	err := s.InTx(ctx, func(ctx context.Context, repos core.Repositories) error {
		_, err := repos.Cities.InsertCity(ctx, core.City{ID: uuid.New(), Name: "Omsk"})
		require.NoError(t, err)

		go func() {
			_, err := s.GrantAdmin(context.Background(), "ops@example.com")
			granted <- err
		}()
		time.Sleep(20 * time.Millisecond)
		return errors.New("import failed")
	})
	require.Error(t, err)
	require.NoError(t, <-granted)

	u, err := s.Repos().Users.FindUserByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	require.NotNil(t, u, "grant must not be undone by the rollback")
	assert.True(t, u.IsAdmin)
	assert.Equal(t, 0, s.Counts().Cities)
}
