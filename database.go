package main

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB connects to postgres using the loaded config and runs migrations.
func InitDB(cfg Config) error {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return err
	}
	DB = db
	return Migrate(DB)
}

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Event{},
		&EventParticipant{},
		&EventInvitation{},
		&EventSeries{},
		&SeriesEvent{},
		&ContactsList{},
		&ContactsListMember{},
		&DeleteRequest{},
	)
}
