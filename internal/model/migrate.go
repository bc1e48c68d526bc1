package model

import "gorm.io/gorm"

// All lists every table in migration order.
func All() []interface{} {
	return []interface{}{
		&Analysis{},
		&Message{},
		&ContentCache{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
