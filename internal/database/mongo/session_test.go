package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pricewatch/internal/model"
)

func TestLatestPricesPipeline_TakesOneRecordPerProduct(t *testing.T) {
	out, err := bson.MarshalExtJSON(bson.D{{Key: "pipeline", Value: latestPricesPipeline()}}, false, false)
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `"from":"products"`)
	assert.Contains(t, s, `"from":"price_records"`)
	assert.Contains(t, s, `"created_at":-1`)
	assert.Contains(t, s, `"$limit":1`)
	assert.Contains(t, s, `"$$product_id"`)
}

func TestUserWithProducts_ToModel(t *testing.T) {
	uid, pid := primitive.NewObjectID(), primitive.NewObjectID()
	created := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	doc := userWithProducts{
		User: User{ID: uid, Name: "alice", Recipient: "chat-1"},
		Products: []productWithPrices{{
			Product: Product{ID: pid, UserID: uid, Marketplace: "shopee", Link: "link"},
			Prices: []PriceRecord{{
				ProductID: pid, BasePrice: 100, DiscountedPrice: 90,
				CreatedAt: primitive.NewDateTimeFromTime(created),
			}},
		}},
	}

	u := doc.toModel()
	assert.Equal(t, uid.Hex(), u.ID)
	assert.Equal(t, "chat-1", u.Recipient)
	require.Len(t, u.Products, 1)
	assert.Equal(t, pid.Hex(), u.Products[0].ID)
	assert.Equal(t, model.PriceRecord{ProductID: pid.Hex(), BasePrice: 100, DiscountedPrice: 90, CreatedAt: created},
		u.Products[0].Prices[0])
}

func TestPriceRecordFromModel_InvalidProductID(t *testing.T) {
	_, err := priceRecordFromModel(model.PriceRecord{ProductID: "p1"})
	assert.Error(t, err)

	pid := primitive.NewObjectID()
	doc, err := priceRecordFromModel(model.PriceRecord{ProductID: pid.Hex(), BasePrice: 5})
	require.NoError(t, err)
	assert.Equal(t, pid, doc.ProductID)
	assert.NotZero(t, doc.CreatedAt)
}
