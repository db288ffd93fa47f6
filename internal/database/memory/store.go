// Package memory is an in-process store used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"pricewatch/internal/database"
	"pricewatch/internal/model"
)

type Store struct {
	mu       sync.RWMutex
	users    []model.User
	products map[string]model.Product // keyed by product id
	prices   map[string][]model.PriceRecord
	nextID   int

	// FailAppend, when set, is returned by AppendPrices without storing anything.
	FailAppend error
	opened     int
	closed     int
}

func NewStore() *Store {
	return &Store{
		products: make(map[string]model.Product),
		prices:   make(map[string][]model.PriceRecord),
	}
}

func (s *Store) UserInsert(name string, recipient string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := "u" + strconv.Itoa(s.nextID)
	s.users = append(s.users, model.User{ID: id, Name: name, Recipient: recipient})
	return id
}

func (s *Store) ProductInsert(userID string, marketplace string, link string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, u := range s.users {
		if u.ID == userID {
			found = true
			break
		}
	}
	if !found {
		return "", database.ErrNotFound
	}
	s.nextID++
	id := "p" + strconv.Itoa(s.nextID)
	s.products[id] = model.Product{ID: id, UserID: userID, Marketplace: marketplace, Link: link}
	return id, nil
}

// PriceInsert seeds history directly, bypassing FailAppend.
func (s *Store) PriceInsert(r model.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[r.ProductID]; !ok {
		return database.ErrNotFound
	}
	s.prices[r.ProductID] = append(s.prices[r.ProductID], r)
	return nil
}

// History returns a copy of a product's records ordered by CreatedAt.
func (s *Store) History(productID string) []model.PriceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]model.PriceRecord(nil), s.prices[productID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Sessions reports how many sessions were opened and closed.
func (s *Store) Sessions() (opened int, closed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opened, s.closed
}

func (s *Store) Open(_ context.Context) (database.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	return &session{store: s}, nil
}

type session struct {
	store  *Store
	closed bool
}

func (ss *session) LatestPrices(_ context.Context) ([]model.User, error) {
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[string][]model.Product)
	for _, p := range s.products {
		pc := p
		pc.Prices = nil
		if last, ok := latest(s.prices[p.ID]); ok {
			pc.Prices = []model.PriceRecord{last}
		}
		byUser[p.UserID] = append(byUser[p.UserID], pc)
	}

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		uc := u
		uc.Products = byUser[u.ID]
		sort.Slice(uc.Products, func(i, j int) bool { return uc.Products[i].ID < uc.Products[j].ID })
		users = append(users, uc)
	}
	return users, nil
}

func (ss *session) AppendPrices(_ context.Context, records []model.PriceRecord) error {
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend != nil {
		return s.FailAppend
	}
	for _, r := range records {
		if _, ok := s.products[r.ProductID]; !ok {
			return database.ErrInvalidInput
		}
	}
	for _, r := range records {
		s.prices[r.ProductID] = append(s.prices[r.ProductID], r)
	}
	return nil
}

func (ss *session) Close(_ context.Context) error {
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ss.closed {
		ss.closed = true
		s.closed++
	}
	return nil
}

func latest(rs []model.PriceRecord) (model.PriceRecord, bool) {
	return model.Product{Prices: rs}.LastPrice()
}
