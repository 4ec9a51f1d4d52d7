package db

import "gorm.io/gorm"

func RunMigrations(database *gorm.DB) error {
	return database.AutoMigrate(&TaskSnapshot{})
}
