package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"pricewatch/internal/database"
	"pricewatch/internal/model"
)

// Open acquires one pooled connection for the whole cycle.
func (p *Pool) Open(ctx context.Context) (database.Session, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error acquiring postgres connection")
	}
	return &session{conn: conn}, nil
}

type session struct {
	conn *pgxpool.Conn
}

const latestPricesQuery = `
SELECT u.id, u.name, u.recipient,
       p.id, p.marketplace, p.link,
       lp.base_price, lp.discounted_price, lp.created_at
FROM users u
LEFT JOIN products p ON p.user_id = u.id
LEFT JOIN LATERAL (
    SELECT pr.base_price, pr.discounted_price, pr.created_at
    FROM price_records pr
    WHERE pr.product_id = p.id
    ORDER BY pr.created_at DESC, pr.id DESC
    LIMIT 1
) lp ON true
ORDER BY u.id, p.id`

func (s *session) LatestPrices(ctx context.Context) ([]model.User, error) {
	rows, err := s.conn.Query(ctx, latestPricesQuery)
	if err != nil {
		return nil, errors.Wrap(err, "error querying latest prices")
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var (
			userID                int64
			name, recipient       string
			productID             *int64
			marketplace, link     *string
			basePrice, discounted *float64
			createdAt             *time.Time
		)
		if err = rows.Scan(&userID, &name, &recipient, &productID, &marketplace, &link,
			&basePrice, &discounted, &createdAt); err != nil {
			return nil, errors.Wrap(err, "error scanning latest prices row")
		}

		uid := strconv.FormatInt(userID, 10)
		if len(users) == 0 || users[len(users)-1].ID != uid {
			users = append(users, model.User{ID: uid, Name: name, Recipient: recipient, Products: []model.Product{}})
		}
		if productID == nil {
			continue
		}
		p := model.Product{
			ID:          strconv.FormatInt(*productID, 10),
			UserID:      uid,
			Marketplace: *marketplace,
			Link:        *link,
		}
		if createdAt != nil {
			p.Prices = []model.PriceRecord{{
				ProductID:       p.ID,
				BasePrice:       *basePrice,
				DiscountedPrice: *discounted,
				CreatedAt:       createdAt.UTC(),
			}}
		}
		u := &users[len(users)-1]
		u.Products = append(u.Products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading latest prices rows")
	}
	return users, nil
}

func (s *session) AppendPrices(ctx context.Context, records []model.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]int64, len(records))
	for i, r := range records {
		id, err := parseID(r.ProductID)
		if err != nil {
			return err
		}
		ids[i] = id
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "error beginning transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"price_records"},
		[]string{"product_id", "base_price", "discounted_price", "created_at"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			createdAt := r.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			return []any{ids[i], r.BasePrice, r.DiscountedPrice, createdAt}, nil
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "error copying %d PriceRecord(s)", len(records))
	}
	return errors.Wrap(tx.Commit(ctx), "error committing PriceRecord(s)")
}

func (s *session) Close(context.Context) error {
	s.conn.Release()
	return nil
}
