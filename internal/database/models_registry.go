package database

import "instafeed/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Credential{},
		&models.Account{},
		&models.Follow{},
		&models.Post{},
		&models.Like{},
		&models.Save{},
		&models.Comment{},
		&models.Reply{},
		&models.Message{},
	}
}
