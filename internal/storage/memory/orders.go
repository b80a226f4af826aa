package memory

import (
	"context"
	"sort"

	"tradecore/internal/apperr"
	"tradecore/internal/model"
	"tradecore/internal/storage"
	"tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type orderStore struct {
	tx *tx
}

func (s *orderStore) Create(ctx context.Context, o model.Order) error {
	if _, ok := s.lookup(o.ID); ok {
		return apperr.Invariantf("order %s already exists", o.ID)
	}
	s.tx.orderPut[o.ID] = cloneOrder(o)
	return nil
}

func (s *orderStore) lookup(id string) (model.Order, bool) {
	if s.tx.orderDel[id] {
		return model.Order{}, false
	}
	if o, ok := s.tx.orderPut[id]; ok {
		return o, true
	}
	o, ok := s.tx.db.orders[id]
	return o, ok
}

func (s *orderStore) Get(ctx context.Context, id string) (model.Order, error) {
	o, ok := s.lookup(id)
	if !ok {
		return model.Order{}, apperr.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *orderStore) Update(ctx context.Context, o model.Order) error {
	if _, ok := s.lookup(o.ID); !ok {
		return apperr.ErrOrderNotFound
	}
	s.tx.orderPut[o.ID] = cloneOrder(o)
	return nil
}

func (s *orderStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.lookup(id); !ok {
		return apperr.ErrOrderNotFound
	}
	delete(s.tx.orderPut, id)
	s.tx.orderDel[id] = true
	return nil
}

func (s *orderStore) all() []model.Order {
	out := make([]model.Order, 0, len(s.tx.db.orders)+len(s.tx.orderPut))
	for id, o := range s.tx.db.orders {
		if s.tx.orderDel[id] {
			continue
		}
		if _, staged := s.tx.orderPut[id]; staged {
			continue
		}
		out = append(out, o)
	}
	for _, o := range s.tx.orderPut {
		out = append(out, o)
	}
	return out
}

func (s *orderStore) List(ctx context.Context, f storage.OrderFilter) ([]model.Order, error) {
	var matched []model.Order
	for _, o := range s.all() {
		if f.Matches(o) {
			matched = append(matched, cloneOrder(o))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *orderStore) Stats(ctx context.Context, f storage.OrderFilter) (storage.OrderStats, error) {
	stats := storage.OrderStats{
		CountByStatus:  make(map[types.OrderStatus]int),
		TotalFilledQty: decimal.Zero,
		TotalNotional:  decimal.Zero,
	}
	bySymbol := make(map[string]*storage.SymbolVolume)
	byUser := make(map[string]*storage.UserVolume)
	for _, o := range s.all() {
		if !f.Matches(o) {
			continue
		}
		stats.TotalOrders++
		stats.CountByStatus[o.Status]++
		notional := o.FilledQty.Mul(o.AvgFillPrice)
		stats.TotalFilledQty = stats.TotalFilledQty.Add(o.FilledQty)
		stats.TotalNotional = stats.TotalNotional.Add(notional)
		sv, ok := bySymbol[o.Symbol]
		if !ok {
			sv = &storage.SymbolVolume{Symbol: o.Symbol, Volume: decimal.Zero, Notional: decimal.Zero}
			bySymbol[o.Symbol] = sv
		}
		sv.Orders++
		sv.Volume = sv.Volume.Add(o.FilledQty)
		sv.Notional = sv.Notional.Add(notional)
		uv, ok := byUser[o.UserID]
		if !ok {
			uv = &storage.UserVolume{UserID: o.UserID, Notional: decimal.Zero}
			byUser[o.UserID] = uv
		}
		uv.Orders++
		uv.Notional = uv.Notional.Add(notional)
	}
	for _, sv := range bySymbol {
		stats.TopSymbols = append(stats.TopSymbols, *sv)
	}
	sort.Slice(stats.TopSymbols, func(i, j int) bool {
		return stats.TopSymbols[i].Notional.GreaterThan(stats.TopSymbols[j].Notional)
	})
	if len(stats.TopSymbols) > 10 {
		stats.TopSymbols = stats.TopSymbols[:10]
	}
	for _, uv := range byUser {
		stats.TopUsers = append(stats.TopUsers, *uv)
	}
	sort.Slice(stats.TopUsers, func(i, j int) bool {
		return stats.TopUsers[i].Notional.GreaterThan(stats.TopUsers[j].Notional)
	})
	if len(stats.TopUsers) > 10 {
		stats.TopUsers = stats.TopUsers[:10]
	}
	return stats, nil
}
