// Package audit records admin actions alongside the mutations they cause.
package audit

import (
	"context"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/storage"

	"github.com/google/uuid"
)

// Append writes an entry inside the caller's transaction so the record
// commits or rolls back with the mutation it describes.
func Append(ctx context.Context, tx storage.Tx, e model.AuditLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return tx.Audit().Append(ctx, e)
}

// Service is the read surface over the audit trail, plus standalone
// appends for actions that have no transaction of their own.
type Service struct {
	db storage.DB
}

func NewService(db storage.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Record(ctx context.Context, e model.AuditLogEntry) error {
	return s.db.WithinTx(ctx, func(tx storage.Tx) error {
		return Append(ctx, tx, e)
	})
}

func (s *Service) List(ctx context.Context, f storage.AuditFilter) ([]model.AuditLogEntry, error) {
	var out []model.AuditLogEntry
	err := s.db.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.Audit().List(ctx, f)
		return err
	})
	return out, err
}
