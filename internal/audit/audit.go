// Package audit records who changed which station and serves the history back
// per station. Entries live in the document store next to the registry data.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Collection holds audit entries in the document store.
const Collection = "audit_logs"

// Entry is one station mutation: create, update, delete or analysis add.
// Metadata carries the request summary and PayloadDigest its sha256.
type Entry struct {
	ID            string          `json:"id"`
	Actor         string          `json:"actor"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	StationID     string          `json:"station_id,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	PayloadDigest string          `json:"payload_digest,omitempty"`
	IP            string          `json:"ip,omitempty"`
	UserAgent     string          `json:"user_agent,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// Trail reads back the audit history of one station.
type Trail interface {
	ListByStation(ctx context.Context, stationID string) ([]Entry, error)
}

// NewID generates an audit document id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON fingerprints entry metadata so later edits of a stored entry are detectable.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
