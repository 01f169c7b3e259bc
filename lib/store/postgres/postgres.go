// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" //nolint:gci // load the postgres driver that is used by the system
	"github.com/pressly/goose/v3"

	"github.com/sentrywallet/sentry/lib/store"
	"github.com/sentrywallet/sentry/lib/store/postgres/migrations"
)

const (
	selectNominee = `SELECT nominee_email FROM profiles WHERE id = $1`
	upsertNominee = `INSERT INTO profiles (id, nominee_email, updated_at) VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET nominee_email = EXCLUDED.nominee_email, updated_at = EXCLUDED.updated_at`
)

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// New returns a postgres client connection to the specified database in 'connection' with the schema migrated.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("cannot reach DB: %w", err)
	}

	p := NewWithDB(db)
	if err = p.Migrate(ctx); err != nil {
		db.Close()

		return nil, err
	}

	return p, nil
}

// NewWithDB returns a Postgres store using an already opened database handle.
func NewWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate runs the embedded schema migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if err := gooseUpContext(ctx, p.db, "."); err != nil {
		return fmt.Errorf("cannot migrate DB: %w", err)
	}

	return nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// GetNomineeEmail loads the nominee email of the account. A missing profile or a profile without email is reported
// as store.ErrDataNotFound.
func (p *Postgres) GetNomineeEmail(ctx context.Context, accountID string) (store.NomineeRecord, error) {
	if accountID == "" {
		return store.NomineeRecord{}, store.ErrNoAccount
	}

	var email sql.NullString

	err := p.db.QueryRowContext(ctx, selectNominee, accountID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return store.NomineeRecord{}, store.ErrDataNotFound
	}

	if err != nil {
		return store.NomineeRecord{}, fmt.Errorf("db error: %w", err)
	}

	if !email.Valid || email.String == "" {
		return store.NomineeRecord{}, store.ErrDataNotFound
	}

	return store.NomineeRecord{AccountID: accountID, NomineeEmail: email.String}, nil
}

// SetNomineeEmail saves the nominee email of the account, creating its profile if needed.
func (p *Postgres) SetNomineeEmail(ctx context.Context, accountID, email string) error {
	if accountID == "" {
		return store.ErrNoAccount
	}

	if _, err := p.db.ExecContext(ctx, upsertNominee, accountID, email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
