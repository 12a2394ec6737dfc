package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fiatramp/internal/config"
)

// Verifies database connectivity and that the maker_details schema matches
// what the store layer migrates, without starting the full service.
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(config.AppConfig.Database.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "unwrap connection: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		fmt.Fprintf(os.Stderr, "query database name: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Connected to %s\n", dbName)

	// Hashed ids are 0x-prefixed 32-byte hex, 66 characters.
	checkColumn(sqlDB, "maker_details", "hashed_onchain_id", 66)
	checkColumn(sqlDB, "maker_details", "payee_details", 512)
}

func checkColumn(db *sql.DB, table, column string, minLen int64) {
	var size sql.NullInt64
	err := db.QueryRow(`
		SELECT character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
	`, table, column).Scan(&size)
	if err != nil {
		fmt.Printf("FAIL %s.%s: %v (run the service once to migrate the schema)\n", table, column, err)
		return
	}
	if !size.Valid {
		fmt.Printf("OK   %s.%s exists (unbounded)\n", table, column)
		return
	}
	if size.Int64 < minLen {
		fmt.Printf("FAIL %s.%s: VARCHAR(%d), need at least %d\n", table, column, size.Int64, minLen)
		return
	}
	fmt.Printf("OK   %s.%s: VARCHAR(%d)\n", table, column, size.Int64)
}
