package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"pricewatch/internal/database"
	"pricewatch/internal/model"
)

// Open starts a client session for one cycle. AppendPrices runs a multi-document
// transaction, so the deployment must be a replica set.
func (db Database) Open(ctx context.Context) (database.Session, error) {
	sess, err := db.Client().StartSession()
	if err != nil {
		return nil, errors.Wrap(err, "error starting MongoDB session")
	}
	return &session{db: db, sess: sess}, nil
}

type session struct {
	db   Database
	sess mongo.Session
}

func (s *session) LatestPrices(ctx context.Context) ([]model.User, error) {
	sctx := mongo.NewSessionContext(ctx, s.sess)
	cur, err := s.db.Collection(CollectionUsers).Aggregate(sctx, latestPricesPipeline())
	if err != nil {
		return nil, errors.Wrap(err, "error getting cursor for latest prices aggregation")
	}
	var docs []userWithProducts
	if err = cur.All(sctx, &docs); err != nil {
		return nil, errors.Wrap(err, "error getting users with latest prices from cursor")
	}
	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toModel())
	}
	return users, nil
}

func (s *session) AppendPrices(ctx context.Context, records []model.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		doc, err := priceRecordFromModel(r)
		if err != nil {
			return errors.Wrapf(database.ErrInvalidInput, "product ID: %#v, err: %v", r.ProductID, err)
		}
		docs = append(docs, doc)
	}
	_, err := s.sess.WithTransaction(ctx, func(sctx mongo.SessionContext) (interface{}, error) {
		return s.db.Collection(CollectionPriceRecords).InsertMany(sctx, docs)
	})
	return errors.Wrapf(err, "error inserting %d PriceRecord(s)", len(docs))
}

func (s *session) Close(ctx context.Context) error {
	s.sess.EndSession(ctx)
	return nil
}

// latestPricesPipeline joins users to their products and each product to its
// single newest price record.
func latestPricesPipeline() mongo.Pipeline {
	matchField := func(field string, variable string) bson.D {
		return bson.D{{Key: "$match", Value: bson.D{
			{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{"$" + field, "$$" + variable}}}},
		}}}
	}
	latestPrice := bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: CollectionPriceRecords},
		{Key: "let", Value: bson.D{{Key: "product_id", Value: "$_id"}}},
		{Key: "pipeline", Value: bson.A{
			matchField("product_id", "product_id"),
			bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
			bson.D{{Key: "$limit", Value: 1}},
		}},
		{Key: "as", Value: "prices"},
	}}}
	return mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollectionProducts},
			{Key: "let", Value: bson.D{{Key: "user_id", Value: "$_id"}}},
			{Key: "pipeline", Value: bson.A{
				matchField("user_id", "user_id"),
				bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
				latestPrice,
			}},
			{Key: "as", Value: "products"},
		}}},
	}
}
