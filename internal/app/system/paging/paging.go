// internal/app/system/paging/paging.go
package paging

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson"
)

// Default page sizes for the list endpoints.
const (
	GroupPageSize   = 25
	MessagePageSize = 50
	SearchPageSize  = 50
	MaxPageSize     = 100
)

// cursorSep separates the timestamp and the tiebreaker id in a cursor.
const cursorSep = "~"

// ErrBadCursor is returned when a cursor cannot be decoded.
var ErrBadCursor = errors.New("invalid cursor")

// ParseLimit extracts the "limit" query parameter.
// Missing, invalid or non-positive values fall back to def; values above
// MaxPageSize are clamped.
func ParseLimit(r *http.Request, def int) int {
	s := query.Get(r, "limit")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// LimitPlusOne returns limit+1 as int64 for look‑ahead pagination
// (fetch one extra document to detect hasMore).
func LimitPlusOne(limit int) int64 { return int64(limit + 1) }

// Trim cuts a look-ahead fetch down to limit rows and reports whether the
// extra row was present. The extra row is discarded and never used as a cursor.
func Trim[T any](rows *[]T, limit int) (hasMore bool) {
	if len(*rows) > limit {
		*rows = (*rows)[:limit]
		return true
	}
	return false
}

// Reverse reverses a slice in place. Use this after fetching results
// newest-first to restore chronological display order.
func Reverse[T any](rows []T) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// Direction indicates the pagination direction.
type Direction int

const (
	Backward Direction = iota // older than the cursor, sort descending
	Forward                   // newer than the cursor, sort ascending
)

// SortOrder returns the Mongo sort value for d.
func (d Direction) SortOrder() int {
	if d == Forward {
		return 1
	}
	return -1
}

// Cursor is a keyset position: a timestamp plus an optional id tiebreaker.
type Cursor struct {
	At time.Time
	ID string
}

// Encode renders c as "<RFC3339Nano>~<id>" (or just the timestamp when ID is empty).
func (c Cursor) Encode() string {
	ts := c.At.UTC().Format(time.RFC3339Nano)
	if c.ID == "" {
		return ts
	}
	return ts + cursorSep + c.ID
}

// EncodeCursor is shorthand for Cursor{At: at, ID: id}.Encode().
func EncodeCursor(at time.Time, id string) string {
	return Cursor{At: at, ID: id}.Encode()
}

// DecodeCursor parses a cursor produced by Encode. A bare ISO-8601 timestamp
// is accepted as well.
func DecodeCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cursor{}, ErrBadCursor
	}
	ts, id, _ := strings.Cut(s, cursorSep)
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	return Cursor{At: at.UTC(), ID: id}, nil
}

// Window returns the filter condition selecting rows strictly past c in
// direction d, ordered by (timeField, idField).
func (c Cursor) Window(timeField, idField string, d Direction) bson.M {
	op := "$lt"
	if d == Forward {
		op = "$gt"
	}
	if c.ID == "" || idField == "" {
		return bson.M{timeField: bson.M{op: c.At}}
	}
	return bson.M{"$or": []bson.M{
		{timeField: bson.M{op: c.At}},
		{timeField: c.At, idField: bson.M{op: c.ID}},
	}}
}

// Sort returns the compound sort for (timeField, idField) in direction d.
func Sort(timeField, idField string, d Direction) bson.D {
	o := d.SortOrder()
	if idField == "" {
		return bson.D{{Key: timeField, Value: o}}
	}
	return bson.D{{Key: timeField, Value: o}, {Key: idField, Value: o}}
}
