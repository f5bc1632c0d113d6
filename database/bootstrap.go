// database/bootstrap.go
package database

import (
	"fmt"
	"log"
	"strings"

	sqlite "github.com/glebarez/sqlite" // CGO-free driver
	"gorm.io/gorm"

	"triage/entities"
)

func OpenSQLite(path string) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}

	// Run the snapshot-column fixup BEFORE AutoMigrate so old databases
	// created without the column don't trip GORM's ALTER TABLE.
	if err := migrateTicketsAddSnapshotColumn(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if err := Migrate(db); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	return db
}

// Migrate runs AutoMigrate for every entity. Exported so tests can build a
// schema on a throwaway database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entities.User{},
		&entities.CTIRecord{},
		&entities.Ticket{},
		&entities.ClassificationCorrection{},
		&entities.TrainingExample{},
		&entities.FewShotExample{},
	)
}

// migrateTicketsAddSnapshotColumn adds tickets.similar_cti_records on
// databases that predate the similarity snapshot.
func migrateTicketsAddSnapshotColumn(db *gorm.DB) error {
	var tbl string
	if err := db.Raw(`SELECT name FROM sqlite_master WHERE type='table' AND name='tickets'`).Scan(&tbl).Error; err != nil {
		return fmt.Errorf("check table exist: %w", err)
	}
	if tbl == "" {
		// fresh DB, nothing to do
		return nil
	}

	type colInfo struct {
		Cid     int
		Name    string
		Type    string
		NotNull int
		Pk      int
	}
	var cols []colInfo
	if err := db.Raw(`PRAGMA table_info(tickets)`).Scan(&cols).Error; err != nil {
		return fmt.Errorf("table_info: %w", err)
	}
	for _, c := range cols {
		if strings.ToLower(c.Name) == "similar_cti_records" {
			return nil
		}
	}
	return db.Exec(`ALTER TABLE tickets ADD COLUMN similar_cti_records TEXT`).Error
}
