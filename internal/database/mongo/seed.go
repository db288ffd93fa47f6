package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"pricewatch/internal/database"
)

// UserInsert and ProductInsert back the external subscription and product
// registration flows; the reconciliation cycle never calls them.
func (db Database) UserInsert(ctx context.Context, u User) (id string, err error) {
	u.CreatedAt = primitive.NewDateTimeFromTime(time.Now())
	r, err := db.Collection(CollectionUsers).InsertOne(ctx, u)
	if err != nil {
		return "", errors.Wrapf(err, "error inserting User with recipient: %s", u.Recipient)
	}
	return r.InsertedID.(primitive.ObjectID).Hex(), nil
}

func (db Database) ProductInsert(ctx context.Context, p Product) (id string, err error) {
	var existing Product
	err = db.Collection(CollectionProducts).FindOne(
		ctx,
		bson.M{"user_id": p.UserID, "marketplace": p.Marketplace, "link": p.Link},
	).Decode(&existing)
	if err == nil {
		return existing.ID.Hex(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return "", errors.Wrapf(err, "error trying to find existing Product: %+v", p)
	}

	if err = db.Collection(CollectionUsers).FindOne(ctx, bson.M{"_id": p.UserID}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", errors.Wrapf(database.ErrNotFound, "User with ID: %s", p.UserID.Hex())
		}
		return "", errors.Wrapf(err, "error finding User with ID: %s", p.UserID.Hex())
	}

	p.CreatedAt = primitive.NewDateTimeFromTime(time.Now())
	r, err := db.Collection(CollectionProducts).InsertOne(ctx, p)
	if err != nil {
		return "", errors.Wrapf(err, "error inserting Product: %+v", p)
	}
	return r.InsertedID.(primitive.ObjectID).Hex(), nil
}
