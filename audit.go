package encryptedir

import (
	"time"

	"github.com/google/uuid"
)

// Audit operations.
const (
	OpCreate    = "create"
	OpGet       = "get"
	OpRotate    = "rotate"
	OpDelete    = "delete"
	OpSetExpiry = "set_expiry"
	OpExport    = "export"
	OpImport    = "import"
)

// auditAllKeys is the KeyID of entries that concern the whole key set.
const auditAllKeys = "*"

const defaultAuditLimit = 100

// AuditEntry is one immutable line of the audit log. Seq is strictly increasing
// in commit order and survives reopening a durable store.
type AuditEntry struct {
	ID        uuid.UUID `json:"id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	KeyID     string    `json:"key_id"`
	Operation string    `json:"operation"`
	Success   bool      `json:"success"`
	Details   string    `json:"details"`
}

// auditBatch accumulates entries for one commit, numbering them after base.
type auditBatch struct {
	base    uint64
	now     time.Time
	entries []AuditEntry
}

func (b *auditBatch) add(keyID, op string, success bool, details string) {
	b.entries = append(b.entries, AuditEntry{
		ID:        uuid.New(),
		Seq:       b.base + uint64(len(b.entries)) + 1,
		Timestamp: b.now,
		KeyID:     keyID,
		Operation: op,
		Success:   success,
		Details:   details,
	})
}

// filterAudit returns up to limit entries for keyID (all when empty), newest first.
// entries must be in Seq order.
func filterAudit(entries []AuditEntry, keyID string, limit int) []AuditEntry {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	out := make([]AuditEntry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		if keyID == "" || entries[i].KeyID == keyID {
			out = append(out, entries[i])
		}
	}
	return out
}
