package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"pricewatch/internal/model"
)

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Recipient string             `bson:"recipient"`
	CreatedAt primitive.DateTime `bson:"created_at"`
}

type Product struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      primitive.ObjectID `bson:"user_id"`
	Marketplace string             `bson:"marketplace"`
	Link        string             `bson:"link"`
	CreatedAt   primitive.DateTime `bson:"created_at"`
}

type PriceRecord struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	ProductID       primitive.ObjectID `bson:"product_id"`
	BasePrice       float64            `bson:"base_price"`
	DiscountedPrice float64            `bson:"discounted_price"`
	CreatedAt       primitive.DateTime `bson:"created_at"`
}

// userWithProducts is the shape produced by the latest prices aggregation.
type userWithProducts struct {
	User     `bson:",inline"`
	Products []productWithPrices `bson:"products"`
}

type productWithPrices struct {
	Product `bson:",inline"`
	Prices  []PriceRecord `bson:"prices"`
}

func (u userWithProducts) toModel() model.User {
	mu := model.User{
		ID:        u.ID.Hex(),
		Name:      u.Name,
		Recipient: u.Recipient,
		Products:  make([]model.Product, 0, len(u.Products)),
	}
	for _, p := range u.Products {
		mp := model.Product{
			ID:          p.ID.Hex(),
			UserID:      p.UserID.Hex(),
			Marketplace: p.Marketplace,
			Link:        p.Link,
		}
		for _, pr := range p.Prices {
			mp.Prices = append(mp.Prices, pr.toModel())
		}
		mu.Products = append(mu.Products, mp)
	}
	return mu
}

func (pr PriceRecord) toModel() model.PriceRecord {
	return model.PriceRecord{
		ProductID:       pr.ProductID.Hex(),
		BasePrice:       pr.BasePrice,
		DiscountedPrice: pr.DiscountedPrice,
		CreatedAt:       pr.CreatedAt.Time().UTC(),
	}
}

func priceRecordFromModel(r model.PriceRecord) (PriceRecord, error) {
	productID, err := primitive.ObjectIDFromHex(r.ProductID)
	if err != nil {
		return PriceRecord{}, err
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return PriceRecord{
		ProductID:       productID,
		BasePrice:       r.BasePrice,
		DiscountedPrice: r.DiscountedPrice,
		CreatedAt:       primitive.NewDateTimeFromTime(createdAt),
	}, nil
}
