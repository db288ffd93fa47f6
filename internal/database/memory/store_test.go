package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/database"
	"pricewatch/internal/model"
)

func TestStore_LatestPricesLoadsOnlyNewestRecord(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	uid := s.UserInsert("alice", "chat-1")
	pid, err := s.ProductInsert(uid, "shopee", "https://shopee.co.id/product/1/2")
	require.NoError(t, err)
	empty, err := s.ProductInsert(uid, "blibli", "https://www.blibli.com/p/x/ps--ABC-12345-67890")
	require.NoError(t, err)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PriceInsert(model.PriceRecord{ProductID: pid, BasePrice: 3, CreatedAt: t0.Add(2 * time.Hour)}))
	require.NoError(t, s.PriceInsert(model.PriceRecord{ProductID: pid, BasePrice: 1, CreatedAt: t0}))

	sess, err := s.Open(ctx)
	require.NoError(t, err)
	defer sess.Close(ctx)

	users, err := sess.LatestPrices(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "chat-1", users[0].Recipient)
	require.Len(t, users[0].Products, 2)
	for _, p := range users[0].Products {
		switch p.ID {
		case pid:
			require.Len(t, p.Prices, 1)
			assert.Equal(t, 3.0, p.Prices[0].BasePrice)
		case empty:
			assert.Empty(t, p.Prices)
		}
	}
}

func TestStore_AppendPricesIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	uid := s.UserInsert("bob", "chat-2")
	pid, _ := s.ProductInsert(uid, "shopee", "link")
	sess, _ := s.Open(ctx)

	err := sess.AppendPrices(ctx, []model.PriceRecord{{ProductID: pid, BasePrice: 1}, {ProductID: "missing"}})
	assert.ErrorIs(t, err, database.ErrInvalidInput)
	assert.Empty(t, s.History(pid))

	s.FailAppend = errors.New("disk full")
	assert.Error(t, sess.AppendPrices(ctx, []model.PriceRecord{{ProductID: pid, BasePrice: 1}}))
	assert.Empty(t, s.History(pid))

	s.FailAppend = nil
	require.NoError(t, sess.AppendPrices(ctx, []model.PriceRecord{{ProductID: pid, BasePrice: 1}}))
	assert.Len(t, s.History(pid), 1)

	require.NoError(t, sess.Close(ctx))
	require.NoError(t, sess.Close(ctx))
	opened, closed := s.Sessions()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestStore_ProductInsertUnknownUser(t *testing.T) {
	_, err := NewStore().ProductInsert("nobody", "shopee", "link")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
