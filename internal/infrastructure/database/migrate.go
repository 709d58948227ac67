package database

import (
	"fmt"

	"gorm.io/gorm"

	"hypermaps/server/internal/infrastructure/database/entities"
)

// Migrate runs schema auto-migration for all entities.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entities.ChatMessage{},
		&entities.Comment{},
		&entities.PublishedMessage{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
