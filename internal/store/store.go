package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fiatramp/internal/config"
	"fiatramp/internal/metrics"
)

// MakerDetails is one stored payee-details record. PayeeDetails holds the raw
// payment destination; only HashedOnchainID ever goes on-chain.
type MakerDetails struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Platform        string    `gorm:"size:32;index:idx_platform_hash,unique" json:"processorName"`
	HashedOnchainID string    `gorm:"size:66;index:idx_platform_hash,unique" json:"hashedOnchainId"`
	PayeeDetails    string    `gorm:"size:512" json:"depositData"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("maker details not found")

// Store persists maker payee details in postgres.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := db.AutoMigrate(&MakerDetails{}); err != nil {
		metrics.DBConnectionStatus.Set(0)
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	metrics.DBConnectionStatus.Set(1)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing gorm handle. Used by tests with sqlite or a
// transaction-scoped connection.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// HashPayeeDetails derives the on-chain id for raw payee details.
func HashPayeeDetails(platform, payeeDetails string) string {
	return crypto.Keccak256Hash([]byte(strings.ToLower(platform) + ":" + payeeDetails)).Hex()
}

// Create stores a payee-details record, deriving the hashed id when the
// caller did not supply one. Re-posting the same details is idempotent.
func (s *Store) Create(platform, payeeDetails, hashedOnchainID string) (*MakerDetails, error) {
	if hashedOnchainID == "" {
		hashedOnchainID = HashPayeeDetails(platform, payeeDetails)
	}

	record := MakerDetails{
		Platform:        strings.ToLower(platform),
		HashedOnchainID: hashedOnchainID,
		PayeeDetails:    payeeDetails,
	}

	existing, err := s.Get(platform, hashedOnchainID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := s.db.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create maker details: %w", err)
	}
	return &record, nil
}

// Get looks up a record by platform and hashed on-chain id.
func (s *Store) Get(platform, hashedOnchainID string) (*MakerDetails, error) {
	var record MakerDetails
	err := s.db.Where("platform = ? AND hashed_onchain_id = ?", strings.ToLower(platform), hashedOnchainID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query maker details: %w", err)
	}
	return &record, nil
}
