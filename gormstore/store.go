// Package gormstore is an encryptedir.Store on a SQL database through gorm.
// Open uses SQLite; New accepts any gorm dialect that supports ON CONFLICT upserts.
package gormstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ai8future/encryptedir"
)

// KeyRecordModel is the gorm model for a wrapped key record.
type KeyRecordModel struct {
	KeyID          string `gorm:"type:varchar(96);primaryKey"`
	KeyType        string `gorm:"type:varchar(64);not null;index:idx_key_type_active"`
	KeySize        int    `gorm:"not null"`
	Description    string
	CreatedAt      time.Time `gorm:"not null;autoCreateTime:false"`
	LastRotated    time.Time `gorm:"not null"`
	ExpiresAt      *time.Time
	RotationPeriod int64  `gorm:"not null"` // nanoseconds
	Active         bool   `gorm:"not null;index:idx_key_type_active"`
	AccessCount    uint64 `gorm:"not null"`
	WrappedKey     []byte `gorm:"not null"`
}

// TableName returns the table name.
func (KeyRecordModel) TableName() string {
	return "encryption_keys"
}

func (m *KeyRecordModel) toDomain() *encryptedir.StoredRecord {
	rec := &encryptedir.StoredRecord{
		KeyRecord: encryptedir.KeyRecord{
			KeyID:          m.KeyID,
			KeyType:        m.KeyType,
			KeySize:        m.KeySize,
			Description:    m.Description,
			CreatedAt:      m.CreatedAt,
			LastRotated:    m.LastRotated,
			ExpiresAt:      m.ExpiresAt,
			RotationPeriod: time.Duration(m.RotationPeriod),
			Active:         m.Active,
			AccessCount:    m.AccessCount,
		},
		WrappedKey: m.WrappedKey,
	}
	return rec
}

func fromRecord(rec *encryptedir.StoredRecord) *KeyRecordModel {
	return &KeyRecordModel{
		KeyID:          rec.KeyID,
		KeyType:        rec.KeyType,
		KeySize:        rec.KeySize,
		Description:    rec.Description,
		CreatedAt:      rec.CreatedAt,
		LastRotated:    rec.LastRotated,
		ExpiresAt:      rec.ExpiresAt,
		RotationPeriod: int64(rec.RotationPeriod),
		Active:         rec.Active,
		AccessCount:    rec.AccessCount,
		WrappedKey:     rec.WrappedKey,
	}
}

// AuditEntryModel is the gorm model for one audit log line.
type AuditEntryModel struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Seq       uint64    `gorm:"not null;uniqueIndex"`
	Timestamp time.Time `gorm:"not null"`
	KeyID     string    `gorm:"type:varchar(96);not null;index"`
	Operation string    `gorm:"type:varchar(32);not null"`
	Success   bool      `gorm:"not null"`
	Details   string
}

// TableName returns the table name.
func (AuditEntryModel) TableName() string {
	return "key_audit_log"
}

// BeforeCreate generates a UUID for entries that arrive without one.
func (e *AuditEntryModel) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

func (e *AuditEntryModel) toDomain() (encryptedir.AuditEntry, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return encryptedir.AuditEntry{}, fmt.Errorf("gormstore: audit entry %d: %w", e.Seq, err)
	}
	return encryptedir.AuditEntry{
		ID:        id,
		Seq:       e.Seq,
		Timestamp: e.Timestamp,
		KeyID:     e.KeyID,
		Operation: e.Operation,
		Success:   e.Success,
		Details:   e.Details,
	}, nil
}

// Store persists records and the audit log in two tables. Commit runs in one transaction.
type Store struct {
	db *gorm.DB
}

var _ encryptedir.Store = (*Store)(nil)

// Open opens the SQLite database at path (":memory:" for a private in-memory database)
// and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", path, err)
	}
	// One connection keeps ":memory:" a single database and serializes SQLite writers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return New(db)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&KeyRecordModel{}, &AuditEntryModel{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) GetRecord(keyID string) (*encryptedir.StoredRecord, error) {
	var model KeyRecordModel
	err := s.db.Where("key_id = ?", keyID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &encryptedir.NotFoundError{KeyID: keyID}
		}
		return nil, err
	}
	return model.toDomain(), nil
}

func (s *Store) ListRecords() ([]*encryptedir.StoredRecord, error) {
	var models []KeyRecordModel
	if err := s.db.Order("key_id").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*encryptedir.StoredRecord, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out, nil
}

func (s *Store) Commit(records []*encryptedir.StoredRecord, entries []encryptedir.AuditEntry) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key_id"}},
				UpdateAll: true,
			}).Create(fromRecord(rec)).Error
			if err != nil {
				return err
			}
		}
		for _, e := range entries {
			model := &AuditEntryModel{
				Seq:       e.Seq,
				Timestamp: e.Timestamp,
				KeyID:     e.KeyID,
				Operation: e.Operation,
				Success:   e.Success,
				Details:   e.Details,
			}
			if e.ID != uuid.Nil {
				model.ID = e.ID.String()
			}
			if err := tx.Create(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListAudit() ([]encryptedir.AuditEntry, error) {
	var models []AuditEntryModel
	if err := s.db.Order("seq").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]encryptedir.AuditEntry, 0, len(models))
	for i := range models {
		e, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
