package mongodb

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Now returns the current time in UTC truncated to millisecond precision,
// which is what BSON dates store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// SortField represents a field to sort by
type SortField struct {
	Field      string
	Descending bool
}

// SortMultiple creates a multi-field sort option
func SortMultiple(fields ...SortField) bson.D {
	sort := bson.D{}
	for _, f := range fields {
		dir := 1
		if f.Descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: f.Field, Value: dir})
	}
	return sort
}

// IsNotFound reports whether err is the driver's no documents error
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
