// internal/database/models.go
package database

import "time"

// Setting stores application settings
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectCacheEntry is a locally cached project summary, used to list
// projects without a round trip to the backend store.
type ProjectCacheEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	UpdatedAt   int64  `json:"updated_at"`
}
