package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Transition moves the row identified by id from status `from` to status `to`
// in a single conditional UPDATE. It reports false when the row no longer
// holds `from`, leaving the row untouched.
func Transition[T any, S ~string](ctx context.Context, db *gorm.DB, id string, from, to S, fields map[string]any) (bool, error) {
	values := map[string]any{
		"status":     string(to),
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		values[k] = v
	}

	res := db.WithContext(ctx).
		Model(new(T)).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
