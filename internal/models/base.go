// Package models contains the persisted documents and the application error type.
package models

import (
	"github.com/google/uuid"
)

// assignID fills an empty string primary key with a fresh uuid.
func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
