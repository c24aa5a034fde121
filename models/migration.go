package models

import (
	"log"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Delivery{},
		&BatchRecord{}, &BatchLinkCandidate{},
		&ImportRun{}, &ImportRunError{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
