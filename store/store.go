package store

import (
	"context"
	"fmt"

	"github.com/kevinaaaquil/sharemybook/models"
)

// Store is the device-local persistence used by the library, the profile
// screens and transaction reconciliation. Lookups return (nil, nil) when the
// record does not exist.
type Store interface {
	BookByUID(ctx context.Context, uid string) (*models.Book, error)
	BookByISBN(ctx context.Context, isbn, ownerUID string) (*models.Book, error)
	UserBooks(ctx context.Context, userUID string) ([]models.Book, error)
	LentBooks(ctx context.Context, ownerUID string) ([]models.Book, error)
	BorrowedBooks(ctx context.Context, borrowerUID string) ([]models.Book, error)
	UpsertBook(ctx context.Context, book *models.Book) error
	DeleteBook(ctx context.Context, uid string) error

	CurrentUser(ctx context.Context) (*models.User, error)
	UserByUID(ctx context.Context, uid string) (*models.User, error)
	Contacts(ctx context.Context) ([]models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
	SaveCurrentUser(ctx context.Context, user *models.User) error

	Close(ctx context.Context) error
}

// Open returns the store selected by driver ("sqlite" or "mongo").
func Open(ctx context.Context, driver, sqlitePath, mongoURI, dbName string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(sqlitePath)
	case "mongo", "mongodb":
		db, err := NewMongoDB(ctx, mongoURI, dbName)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
