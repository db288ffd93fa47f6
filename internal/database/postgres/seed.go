package postgres

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"pricewatch/internal/database"
	"pricewatch/internal/model"
)

// UserInsert, ProductInsert and PriceInsert back external registration flows
// and tests; the reconciliation cycle never calls them.
func (p *Pool) UserInsert(ctx context.Context, name string, recipient string) (string, error) {
	var id int64
	err := p.QueryRow(ctx,
		`INSERT INTO users (name, recipient) VALUES ($1, $2) RETURNING id`,
		name, recipient,
	).Scan(&id)
	if err != nil {
		return "", errors.Wrapf(err, "error inserting User with recipient: %s", recipient)
	}
	return strconv.FormatInt(id, 10), nil
}

func (p *Pool) ProductInsert(ctx context.Context, userID string, marketplace string, link string) (string, error) {
	uid, err := parseID(userID)
	if err != nil {
		return "", err
	}
	var id int64
	err = p.QueryRow(ctx,
		`INSERT INTO products (user_id, marketplace, link) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, marketplace, link) DO UPDATE SET link = EXCLUDED.link
		 RETURNING id`,
		uid, marketplace, link,
	).Scan(&id)
	if err != nil {
		if isForeignKeyError(err) {
			return "", errors.Wrapf(database.ErrNotFound, "User with ID: %s", userID)
		}
		return "", errors.Wrapf(err, "error inserting Product with link: %s", link)
	}
	return strconv.FormatInt(id, 10), nil
}

func (p *Pool) PriceInsert(ctx context.Context, r model.PriceRecord) error {
	pid, err := parseID(r.ProductID)
	if err != nil {
		return err
	}
	_, err = p.Exec(ctx,
		`INSERT INTO price_records (product_id, base_price, discounted_price, created_at) VALUES ($1, $2, $3, $4)`,
		pid, r.BasePrice, r.DiscountedPrice, r.CreatedAt,
	)
	if isForeignKeyError(err) {
		return errors.Wrapf(database.ErrNotFound, "Product with ID: %s", r.ProductID)
	}
	return errors.Wrapf(err, "error inserting PriceRecord for Product: %s", r.ProductID)
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(database.ErrInvalidInput, "ID: %#v", id)
	}
	return n, nil
}
