package xid

import "github.com/google/uuid"

// New returns a prefixed unique id, e.g. "sale-5f1c...". The prefix keeps
// ids self-describing in logs and audit records.
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
