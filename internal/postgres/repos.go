package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/listings/internal/core"
)

// CityRepo implements core.CityRepository.
type CityRepo struct{ db DBTX }

func (r *CityRepo) FindCityByName(ctx context.Context, name string) (*core.City, error) {
	return r.findOne(ctx, `SELECT id, name, created_at FROM cities WHERE name = $1`, name)
}

func (r *CityRepo) FindCityByID(ctx context.Context, id uuid.UUID) (*core.City, error) {
	return r.findOne(ctx, `SELECT id, name, created_at FROM cities WHERE id = $1`, core.ToPgUUID(id))
}

func (r *CityRepo) findOne(ctx context.Context, query string, arg any) (*core.City, error) {
	var (
		c  core.City
		id pgtype.UUID
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(&id, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find city", err)
	}
	c.ID = core.FromPgUUID(id)
	return &c, nil
}

func (r *CityRepo) InsertCity(ctx context.Context, city core.City) (*core.City, error) {
	const q = `
		INSERT INTO cities (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
		RETURNING id`

	var id pgtype.UUID
	err := r.db.QueryRow(ctx, q, core.ToPgUUID(city.ID), city.Name, city.CreatedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("city %q: %w", city.Name, core.ErrDuplicateKey)
	}
	if err != nil {
		return nil, wrap("insert city", err)
	}
	city.ID = core.FromPgUUID(id)
	return &city, nil
}

// SourceRepo implements core.SourceRepository.
type SourceRepo struct{ db DBTX }

func (r *SourceRepo) FindSourceByURL(ctx context.Context, url string) (*core.Source, error) {
	return r.findOne(ctx, `SELECT id, name, url, created_at FROM sources WHERE url = $1`, url)
}

func (r *SourceRepo) FindSourceByID(ctx context.Context, id uuid.UUID) (*core.Source, error) {
	return r.findOne(ctx, `SELECT id, name, url, created_at FROM sources WHERE id = $1`, core.ToPgUUID(id))
}

func (r *SourceRepo) findOne(ctx context.Context, query string, arg any) (*core.Source, error) {
	var (
		s  core.Source
		id pgtype.UUID
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(&id, &s.Name, &s.URL, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find source", err)
	}
	s.ID = core.FromPgUUID(id)
	return &s, nil
}

func (r *SourceRepo) InsertSource(ctx context.Context, src core.Source) (*core.Source, error) {
	const q = `
		INSERT INTO sources (id, name, url, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO NOTHING
		RETURNING id`

	var id pgtype.UUID
	err := r.db.QueryRow(ctx, q, core.ToPgUUID(src.ID), src.Name, src.URL, src.CreatedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("source %q: %w", src.URL, core.ErrDuplicateKey)
	}
	if err != nil {
		return nil, wrap("insert source", err)
	}
	src.ID = core.FromPgUUID(id)
	return &src, nil
}

// UserRepo implements core.UserRepository.
type UserRepo struct{ db DBTX }

const userColumns = `id, email, first_name, last_name, middle_name, is_admin, created_at`

func (r *UserRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*core.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, core.ToPgUUID(id))
}

func (r *UserRepo) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepo) findOne(ctx context.Context, query string, args ...any) (*core.User, error) {
	var (
		u                   core.User
		id                  pgtype.UUID
		first, last, middle pgtype.Text
	)
	err := r.db.QueryRow(ctx, query, args...).Scan(&id, &u.Email, &first, &last, &middle, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find user", err)
	}
	u.ID = core.FromPgUUID(id)
	u.FirstName, u.LastName, u.MiddleName = first.String, last.String, middle.String
	return &u, nil
}

func (r *UserRepo) InsertUser(ctx context.Context, u core.User) (*core.User, error) {
	const q = `
		INSERT INTO users (id, email, first_name, last_name, middle_name, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO NOTHING
		RETURNING id`

	var id pgtype.UUID
	err := r.db.QueryRow(ctx, q,
		core.ToPgUUID(u.ID), u.Email,
		core.ToPgText(u.FirstName), core.ToPgText(u.LastName), core.ToPgText(u.MiddleName),
		u.IsAdmin, u.CreatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", u.Email, core.ErrDuplicateKey)
	}
	if err != nil {
		return nil, wrap("insert user", err)
	}
	u.ID = core.FromPgUUID(id)
	return &u, nil
}

// ListingRepo implements core.ListingRepository.
type ListingRepo struct{ db DBTX }

func (r *ListingRepo) InsertListing(ctx context.Context, l core.Listing) error {
	const q = `
		INSERT INTO listings (
			id, title, description, price, district, rooms, url,
			created_at, publication_date, city_id, source_id, owner_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	var rooms pgtype.Int4
	if l.Rooms != nil {
		rooms = pgtype.Int4{Int32: *l.Rooms, Valid: true}
	}

	_, err := r.db.Exec(ctx, q,
		core.ToPgUUID(l.ID),
		l.Title,
		core.ToPgText(l.Description),
		l.Price,
		core.ToPgText(l.District),
		rooms,
		core.ToPgText(l.URL),
		l.CreatedAt,
		l.PublicationDate,
		core.ToPgUUID(l.CityID),
		core.ToPgUUID(l.SourceID),
		core.ToPgUUID(l.OwnerID),
	)
	return wrap("insert listing", err)
}

func (r *ListingRepo) InsertImage(ctx context.Context, img core.ListingImage) error {
	const q = `INSERT INTO listing_images (id, listing_id, data, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, q, core.ToPgUUID(img.ID), core.ToPgUUID(img.ListingID), img.Data, img.CreatedAt)
	return wrap("insert listing image", err)
}

func (r *ListingRepo) GetListing(ctx context.Context, id uuid.UUID) (*core.Listing, error) {
	const q = `
		SELECT id, title, description, price, district, rooms, url,
		       created_at, publication_date, city_id, source_id, owner_id
		FROM listings WHERE id = $1`

	var (
		l                        core.Listing
		lid, city, source, owner pgtype.UUID
		description, district, u pgtype.Text
		rooms                    pgtype.Int4
		createdAt, published     time.Time
	)
	err := r.db.QueryRow(ctx, q, core.ToPgUUID(id)).Scan(
		&lid, &l.Title, &description, &l.Price, &district, &rooms, &u,
		&createdAt, &published, &city, &source, &owner,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get listing", err)
	}

	l.ID = core.FromPgUUID(lid)
	l.Description, l.District, l.URL = description.String, district.String, u.String
	if rooms.Valid {
		n := rooms.Int32
		l.Rooms = &n
	}
	l.CreatedAt, l.PublicationDate = createdAt.UTC(), published.UTC()
	l.CityID, l.SourceID, l.OwnerID = core.FromPgUUID(city), core.FromPgUUID(source), core.FromPgUUID(owner)
	return &l, nil
}

func (r *ListingRepo) ListImageIDs(ctx context.Context, listingID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM listing_images WHERE listing_id = $1 ORDER BY created_at, id`,
		core.ToPgUUID(listingID))
	if err != nil {
		return nil, wrap("list listing images", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var id pgtype.UUID
		err := row.Scan(&id)
		return core.FromPgUUID(id), err
	})
	if err != nil {
		return nil, wrap("list listing images", err)
	}
	return ids, nil
}

func (r *ListingRepo) GetImage(ctx context.Context, listingID, imageID uuid.UUID) (*core.ListingImage, error) {
	const q = `
		SELECT id, listing_id, data, created_at
		FROM listing_images
		WHERE id = $1 AND listing_id = $2`

	var (
		img     core.ListingImage
		id, lid pgtype.UUID
	)
	err := r.db.QueryRow(ctx, q, core.ToPgUUID(imageID), core.ToPgUUID(listingID)).
		Scan(&id, &lid, &img.Data, &img.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get image", err)
	}
	img.ID, img.ListingID = core.FromPgUUID(id), core.FromPgUUID(lid)
	return &img, nil
}
