package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevinaaaquil/sharemybook/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS relay_shares (
    share_id     TEXT PRIMARY KEY,
    record       JSONB NOT NULL,
    borrower     JSONB,
    borrower_uid TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS relay_shares_created_at ON relay_shares (created_at);`

// PostgresStore keeps shares in Postgres so several relay instances can
// serve the same devices.
type PostgresStore struct {
	Db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create relay schema: %w", err)
	}
	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, tx models.Transaction) error {
	tx.Borrower = nil
	record, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	_, err = s.Db.Exec(ctx, "INSERT INTO relay_shares (share_id, record) VALUES ($1, $2)", tx.ShareID, record)
	return err
}

func scanShare(row pgx.Row) (*models.Transaction, time.Time, error) {
	var (
		record, borrower []byte
		createdAt        time.Time
	)
	if err := row.Scan(&record, &borrower, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, err
	}
	var tx models.Transaction
	if err := json.Unmarshal(record, &tx); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode share: %w", err)
	}
	if borrower != nil {
		var b models.TransactionUser
		if err := json.Unmarshal(borrower, &b); err != nil {
			return nil, time.Time{}, fmt.Errorf("decode borrower: %w", err)
		}
		tx.Borrower = &b
	}
	return &tx, createdAt, nil
}

func (s *PostgresStore) Get(ctx context.Context, shareID string) (*models.Transaction, time.Time, error) {
	return scanShare(s.Db.QueryRow(ctx,
		"SELECT record, borrower, created_at FROM relay_shares WHERE share_id = $1", shareID))
}

// Accept sets the borrower only while it is unset or already the same person,
// so two devices racing on one share cannot both win.
func (s *PostgresStore) Accept(ctx context.Context, shareID string, borrower models.TransactionUser) (*models.Transaction, error) {
	b, err := json.Marshal(borrower)
	if err != nil {
		return nil, err
	}
	tx, _, err := scanShare(s.Db.QueryRow(ctx, `
		UPDATE relay_shares SET borrower = $2, borrower_uid = $3
		WHERE share_id = $1 AND (borrower_uid IS NULL OR borrower_uid = $3)
		RETURNING record, borrower, created_at`, shareID, b, borrower.UID))
	if !errors.Is(err, ErrNotFound) {
		return tx, err
	}
	var exists bool
	if err := s.Db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM relay_shares WHERE share_id = $1)", shareID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyAccepted
	}
	return nil, ErrNotFound
}

func (s *PostgresStore) Delete(ctx context.Context, shareID string) error {
	_, err := s.Db.Exec(ctx, "DELETE FROM relay_shares WHERE share_id = $1", shareID)
	return err
}

func (s *PostgresStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.Db.Exec(ctx, "DELETE FROM relay_shares WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
