package database

import "knot/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Account{},
		&models.Session{},
		&models.User{},
		&models.File{},
		&models.Post{},
		&models.Like{},
		&models.Save{},
		&models.FileDeletion{},
	}
}
