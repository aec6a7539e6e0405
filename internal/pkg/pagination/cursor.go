// Package pagination encodes keyset cursors for listing endpoints.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultLimit is used when no page size is requested
	DefaultLimit = 50
	// MaxLimit caps the page size
	MaxLimit = 200
)

// Cursor marks the last row of a page ordered by (timestamp, id) descending.
type Cursor struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
}

// NewCursor creates a new cursor from an ID and timestamp
func NewCursor(id string, timestamp time.Time) *Cursor {
	return &Cursor{ID: id, Timestamp: timestamp}
}

// Encode encodes the cursor to a URL-safe string
func (c *Cursor) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor decodes a cursor string. An empty string is no cursor.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}
	if cursor.ID == "" {
		return nil, fmt.Errorf("invalid cursor: missing id")
	}
	return &cursor, nil
}

// ClampLimit applies the default and maximum page size
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
