package model

import (
	"time"

	"tradecore/internal/types"
)

// AuditLogEntry records one administrative action. Entries are append-only
// and immutable once written.
type AuditLogEntry struct {
	ID           string            `json:"id"`
	AdminID      string            `json:"admin_id"`
	Action       types.AuditAction `json:"action"`
	TargetUserID string            `json:"target_user_id,omitempty"`
	TargetID     string            `json:"target_id,omitempty"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ActorIP      string            `json:"actor_ip,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
