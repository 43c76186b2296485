package store

import (
	"context"
	"time"

	"github.com/kevinaaaquil/sharemybook/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *DB) findBooks(ctx context.Context, filter bson.M) ([]models.Book, error) {
	cur, err := db.Books().Find(ctx, filter, options.Find().SetSort(bson.M{"createdAt": -1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var books []models.Book
	if err := cur.All(ctx, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (db *DB) findBook(ctx context.Context, filter bson.M) (*models.Book, error) {
	var book models.Book
	err := db.Books().FindOne(ctx, filter).Decode(&book)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (db *DB) BookByUID(ctx context.Context, uid string) (*models.Book, error) {
	return db.findBook(ctx, bson.M{"_id": uid})
}

// BookByISBN finds a copy of isbn owned by ownerUID, used to warn about duplicates.
func (db *DB) BookByISBN(ctx context.Context, isbn, ownerUID string) (*models.Book, error) {
	return db.findBook(ctx, bson.M{"isbn": isbn, "ownerUuid": ownerUID})
}

// UserBooks returns the books the user owns or currently borrows, newest first.
func (db *DB) UserBooks(ctx context.Context, userUID string) ([]models.Book, error) {
	return db.findBooks(ctx, bson.M{"$or": bson.A{
		bson.M{"ownerUuid": userUID},
		bson.M{"borrowerUuid": userUID},
	}})
}

func (db *DB) LentBooks(ctx context.Context, ownerUID string) ([]models.Book, error) {
	return db.findBooks(ctx, bson.M{"ownerUuid": ownerUID, "borrowerUuid": bson.M{"$exists": true, "$ne": nil}})
}

func (db *DB) BorrowedBooks(ctx context.Context, borrowerUID string) ([]models.Book, error) {
	return db.findBooks(ctx, bson.M{"borrowerUuid": borrowerUID})
}

// UpsertBook writes the book keyed by uid. createdAt is only set on insert so
// repeated writes of the same book converge.
func (db *DB) UpsertBook(ctx context.Context, book *models.Book) error {
	createdAt := book.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	set := bson.M{
		"isbn":      book.ISBN,
		"title":     book.Title,
		"authors":   book.Authors,
		"coverUrl":  book.CoverURL,
		"ownerUuid": book.OwnerUUID,
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": createdAt},
	}
	if book.BorrowerUUID != nil {
		set["borrowerUuid"] = *book.BorrowerUUID
	} else {
		update["$unset"] = bson.M{"borrowerUuid": ""}
	}
	_, err := db.Books().UpdateOne(ctx, bson.M{"_id": book.UID}, update, options.Update().SetUpsert(true))
	return err
}

// DeleteBook removes a book by uid. Deleting a missing book is not an error.
func (db *DB) DeleteBook(ctx context.Context, uid string) error {
	_, err := db.Books().DeleteOne(ctx, bson.M{"_id": uid})
	return err
}
