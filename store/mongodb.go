package store

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

var _ Store = (*DB)(nil)

func NewMongoDB(ctx context.Context, uri, dbName string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	log.Println("Connected to MongoDB")
	return &DB{
		Client:   client,
		Database: client.Database(dbName),
	}, nil
}

func (db *DB) Users() *mongo.Collection {
	return db.Database.Collection("users")
}

func (db *DB) Books() *mongo.Collection {
	return db.Database.Collection("books")
}

// EnsureIndexes creates the lookup indexes used by the library queries.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	_, err := db.Books().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ownerUuid", Value: 1}, {Key: "isbn", Value: 1}}},
		{Keys: bson.D{{Key: "borrowerUuid", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = db.Users().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "isCurrentUser", Value: 1}},
	})
	return err
}

func (db *DB) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return db.Client.Disconnect(ctx)
}
