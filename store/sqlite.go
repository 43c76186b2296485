package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kevinaaaquil/sharemybook/models"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the embedded store used on a single device.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) the database at path and applies migrations.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close(context.Context) error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func migrate(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            uid TEXT PRIMARY KEY,
            full_name TEXT NOT NULL,
            tel TEXT NOT NULL,
            email TEXT NOT NULL,
            is_current INTEGER NOT NULL DEFAULT 0,
            created_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            uid TEXT PRIMARY KEY,
            isbn TEXT NOT NULL,
            title TEXT NOT NULL,
            authors TEXT NOT NULL,
            cover_url TEXT NOT NULL DEFAULT '',
            owner_uuid TEXT NOT NULL,
            borrower_uuid TEXT,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_books_owner ON books(owner_uuid, isbn);`,
		`CREATE INDEX IF NOT EXISTS idx_books_borrower ON books(borrower_uuid);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

const bookColumns = `uid,isbn,title,authors,cover_url,owner_uuid,borrower_uuid,created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner) (*models.Book, error) {
	var (
		b        models.Book
		borrower sql.NullString
		created  int64
	)
	if err := row.Scan(&b.UID, &b.ISBN, &b.Title, &b.Authors, &b.CoverURL, &b.OwnerUUID, &borrower, &created); err != nil {
		return nil, err
	}
	if borrower.Valid {
		b.LendTo(borrower.String)
	}
	b.CreatedAt = time.UnixMilli(created)
	return &b, nil
}

func (s *SQLite) queryBook(ctx context.Context, query string, args ...any) (*models.Book, error) {
	b, err := scanBook(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *SQLite) queryBooks(ctx context.Context, query string, args ...any) ([]models.Book, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

func (s *SQLite) BookByUID(ctx context.Context, uid string) (*models.Book, error) {
	return s.queryBook(ctx, `SELECT `+bookColumns+` FROM books WHERE uid=?`, uid)
}

func (s *SQLite) BookByISBN(ctx context.Context, isbn, ownerUID string) (*models.Book, error) {
	return s.queryBook(ctx, `SELECT `+bookColumns+` FROM books WHERE isbn=? AND owner_uuid=? LIMIT 1`, isbn, ownerUID)
}

func (s *SQLite) UserBooks(ctx context.Context, userUID string) ([]models.Book, error) {
	return s.queryBooks(ctx, `SELECT `+bookColumns+` FROM books
        WHERE owner_uuid=? OR borrower_uuid=? ORDER BY created_at DESC`, userUID, userUID)
}

func (s *SQLite) LentBooks(ctx context.Context, ownerUID string) ([]models.Book, error) {
	return s.queryBooks(ctx, `SELECT `+bookColumns+` FROM books
        WHERE owner_uuid=? AND borrower_uuid IS NOT NULL ORDER BY created_at DESC`, ownerUID)
}

func (s *SQLite) BorrowedBooks(ctx context.Context, borrowerUID string) ([]models.Book, error) {
	return s.queryBooks(ctx, `SELECT `+bookColumns+` FROM books
        WHERE borrower_uuid=? ORDER BY created_at DESC`, borrowerUID)
}

// UpsertBook inserts or replaces the book keyed by uid, keeping the original created_at.
func (s *SQLite) UpsertBook(ctx context.Context, book *models.Book) error {
	createdAt := book.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var borrower sql.NullString
	if book.BorrowerUUID != nil {
		borrower = sql.NullString{String: *book.BorrowerUUID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO books(`+bookColumns+`) VALUES(?,?,?,?,?,?,?,?)
        ON CONFLICT(uid) DO UPDATE SET
            isbn=excluded.isbn,
            title=excluded.title,
            authors=excluded.authors,
            cover_url=excluded.cover_url,
            owner_uuid=excluded.owner_uuid,
            borrower_uuid=excluded.borrower_uuid;`,
		book.UID, book.ISBN, book.Title, book.Authors, book.CoverURL, book.OwnerUUID, borrower, createdAt.UnixMilli())
	return err
}

func (s *SQLite) DeleteBook(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE uid=?`, uid)
	return err
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

const userColumns = `uid,full_name,tel,email,is_current,created_at`

func scanUser(row scanner) (*models.User, error) {
	var (
		u       models.User
		created int64
	)
	if err := row.Scan(&u.UID, &u.FullName, &u.Tel, &u.Email, &u.IsCurrentUser, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = time.UnixMilli(created)
	return &u, nil
}

func (s *SQLite) queryUser(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *SQLite) CurrentUser(ctx context.Context) (*models.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE is_current=1 LIMIT 1`)
}

func (s *SQLite) UserByUID(ctx context.Context, uid string) (*models.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE uid=?`, uid)
}

func (s *SQLite) Contacts(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE is_current=0 ORDER BY full_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func upsertUser(ctx context.Context, exec interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, user *models.User) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := exec.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES(?,?,?,?,?,?)
        ON CONFLICT(uid) DO UPDATE SET
            full_name=excluded.full_name,
            tel=excluded.tel,
            email=excluded.email,
            is_current=excluded.is_current;`,
		user.UID, user.FullName, user.Tel, user.Email, user.IsCurrentUser, createdAt.UnixMilli())
	return err
}

func (s *SQLite) UpsertUser(ctx context.Context, user *models.User) error {
	return upsertUser(ctx, s.db, user)
}

// SaveCurrentUser stores user as the device owner and demotes any previous owner
// in one transaction.
func (s *SQLite) SaveCurrentUser(ctx context.Context, user *models.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE users SET is_current=0 WHERE is_current=1 AND uid<>?`, user.UID); err != nil {
		return err
	}
	u := *user
	u.IsCurrentUser = true
	if err := upsertUser(ctx, tx, &u); err != nil {
		return err
	}
	return tx.Commit()
}
