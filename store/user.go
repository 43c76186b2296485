package store

import (
	"context"
	"time"

	"github.com/kevinaaaquil/sharemybook/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *DB) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	err := db.Users().FindOne(ctx, filter).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (db *DB) CurrentUser(ctx context.Context) (*models.User, error) {
	return db.findUser(ctx, bson.M{"isCurrentUser": true})
}

func (db *DB) UserByUID(ctx context.Context, uid string) (*models.User, error) {
	return db.findUser(ctx, bson.M{"_id": uid})
}

// Contacts lists every user except the device owner, sorted by name.
func (db *DB) Contacts(ctx context.Context) ([]models.User, error) {
	cur, err := db.Users().Find(ctx, bson.M{"isCurrentUser": false}, options.Find().SetSort(bson.M{"fullName": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	update := bson.M{
		"$set": bson.M{
			"fullName":      user.FullName,
			"tel":           user.Tel,
			"email":         user.Email,
			"isCurrentUser": user.IsCurrentUser,
		},
		"$setOnInsert": bson.M{"createdAt": createdAt},
	}
	_, err := db.Users().UpdateOne(ctx, bson.M{"_id": user.UID}, update, options.Update().SetUpsert(true))
	return err
}

// SaveCurrentUser stores user as the device owner and demotes any previous owner.
func (db *DB) SaveCurrentUser(ctx context.Context, user *models.User) error {
	_, err := db.Users().UpdateMany(ctx,
		bson.M{"isCurrentUser": true, "_id": bson.M{"$ne": user.UID}},
		bson.M{"$set": bson.M{"isCurrentUser": false}},
	)
	if err != nil {
		return err
	}
	u := *user
	u.IsCurrentUser = true
	return db.UpsertUser(ctx, &u)
}
