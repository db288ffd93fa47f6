// Package mongo stores users, products and price history in MongoDB.
package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	Name                   = "pricewatch"
	CollectionUsers        = "users"
	CollectionProducts     = "products"
	CollectionPriceRecords = "price_records"
)

type Database struct {
	*mongo.Database
}

// ConnectDB connects and makes sure the indexes the cycle query relies on exist.
func ConnectDB(ctx context.Context, dbURI string) (*mongo.Client, error) {
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(dbURI))
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to MongoDB")
	}
	if err = EnsureIndexes(ctx, c.Database(Name)); err != nil {
		_ = c.Disconnect(ctx)
		return nil, err
	}
	return c, nil
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CollectionProducts).Indexes().CreateMany(
		ctx,
		[]mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(false),
			},
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "marketplace", Value: 1}, {Key: "link", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	)
	if err != nil {
		return errors.Wrapf(err, "error creating indexes on %s", CollectionProducts)
	}

	_, err = db.Collection(CollectionPriceRecords).Indexes().CreateOne(
		ctx,
		mongo.IndexModel{
			Keys: bson.D{
				{Key: "product_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
	)
	return errors.Wrapf(err, "error creating indexes on %s", CollectionPriceRecords)
}
