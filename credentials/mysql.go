package credentials

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ApiKeyRecord is a provider secret managed by the admin side. Secret holds
// the already-decrypted value; encryption at rest is handled outside this
// service.
type ApiKeyRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Service   string `gorm:"size:64;uniqueIndex"`
	Secret    string `gorm:"size:512"`
	Active    bool   `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DBSource reads active ApiKeyRecords
type DBSource struct {
	db *gorm.DB
}

// OpenMySQL connects to dsn and migrates the api key table.
func OpenMySQL(dsn string) (*DBSource, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&ApiKeyRecord{}); err != nil {
		return nil, fmt.Errorf("migrate api keys: %w", err)
	}
	return NewDBSource(db), nil
}

func NewDBSource(db *gorm.DB) *DBSource {
	return &DBSource{db: db}
}

func (s *DBSource) Snapshot(ctx context.Context) (Snapshot, error) {
	var records []ApiKeyRecord
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&records).Error; err != nil {
		return Snapshot{}, fmt.Errorf("load api keys: %w", err)
	}
	m := make(map[string]string, len(records))
	for _, r := range records {
		m[r.Service] = r.Secret
	}
	return NewSnapshot(m), nil
}

// Put upserts the secret for service and marks it active.
func (s *DBSource) Put(ctx context.Context, service, secret string) error {
	rec := ApiKeyRecord{Service: service}
	return s.db.WithContext(ctx).
		Where(ApiKeyRecord{Service: service}).
		Assign(ApiKeyRecord{Secret: secret, Active: true}).
		FirstOrCreate(&rec).Error
}

func (s *DBSource) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
