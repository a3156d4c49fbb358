package database

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmwedding/invitation/internal/guests"
	"github.com/pmwedding/invitation/internal/wishes"
)

func TestApplyMigrationsBackfillsWishNames(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&guests.Guest{}, &wishes.Wish{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	createdAt := time.Unix(1700000000, 0).UTC()
	guest := guests.Guest{ID: 7, Name: "Sophal", LinkToken: "abc123", CreatedAt: createdAt}
	if err := database.Create(&guest).Error; err != nil {
		testContext.Fatalf("failed to insert guest: %v", err)
	}
	unnamed := wishes.Wish{GuestID: 7, Message: "Congrats!", NumberOfGuests: 2, WillAttend: true, CreatedAt: createdAt}
	orphan := wishes.Wish{GuestID: 99, Message: "Hello", NumberOfGuests: 1, CreatedAt: createdAt}
	for _, wish := range []*wishes.Wish{&unnamed, &orphan} {
		if err := database.Create(wish).Error; err != nil {
			testContext.Fatalf("failed to insert wish: %v", err)
		}
	}

	if err := applyMigrations(database, DriverSQLite, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored wishes.Wish
	if err := database.Where("guest_id = ?", 7).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload wish: %v", err)
	}
	if stored.Name != "Sophal" {
		testContext.Fatalf("expected wish name to be backfilled, got %q", stored.Name)
	}
	var storedOrphan wishes.Wish
	if err := database.Where("guest_id = ?", 99).Take(&storedOrphan).Error; err != nil {
		testContext.Fatalf("failed to reload orphan wish: %v", err)
	}
	if storedOrphan.Name != "" {
		testContext.Fatalf("expected orphan wish to keep an empty name, got %q", storedOrphan.Name)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillWishNames).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsSkipsPostgresOnlyMigrationsOnSQLite(testContext *testing.T) {
	database, err := gorm.Open(sqlite.Open(filepath.Join(testContext.TempDir(), "migration.db")), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&guests.Guest{}, &wishes.Wish{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := applyMigrations(database, DriverSQLite, nil); err != nil {
			testContext.Fatalf("attempt %d: failed to apply migrations: %v", attempt, err)
		}
	}

	var records []migrationRecord
	if err := database.Find(&records).Error; err != nil {
		testContext.Fatalf("failed to list migration records: %v", err)
	}
	if len(records) != 1 || records[0].Name != migrationBackfillWishNames {
		testContext.Fatalf("unexpected migration records: %#v", records)
	}
}
