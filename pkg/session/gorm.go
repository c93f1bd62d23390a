package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DBProvider hands out gorm handles. frame's datastore pool satisfies it.
type DBProvider interface {
	DB(ctx context.Context, readOnly bool) *gorm.DB
}

// Record is the table row holding one encoded session.
type Record struct {
	ID        string `gorm:"primaryKey;size:128"`
	Data      []byte
	UpdatedAt time.Time `gorm:"index"`
}

// TableName overrides the gorm default.
func (Record) TableName() string {
	return "chat_sessions"
}

// GormStore persists sessions through gorm.
type GormStore struct {
	db DBProvider
}

// NewGormStore creates a store on top of a DB provider.
func NewGormStore(db DBProvider) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the sessions table.
func (g *GormStore) Migrate(ctx context.Context) error {
	if err := g.db.DB(ctx, false).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("migrate sessions: %w", err)
	}
	return nil
}

func (g *GormStore) Load(ctx context.Context, id string) (*Session, error) {
	var rec Record
	err := g.db.DB(ctx, true).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", id, err)
	}
	return Decode(rec.Data)
}

func (g *GormStore) Save(ctx context.Context, s *Session) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	rec := Record{ID: s.ID, Data: data, UpdatedAt: s.IdleSince()}
	if err := g.db.DB(ctx, false).Save(&rec).Error; err != nil {
		return fmt.Errorf("save session %q: %w", s.ID, err)
	}
	return nil
}

func (g *GormStore) Delete(ctx context.Context, id string) error {
	if err := g.db.DB(ctx, false).Where("id = ?", id).Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	return nil
}

// Reap deletes rows not updated within maxIdle.
func (g *GormStore) Reap(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxIdle)
	res := g.db.DB(ctx, false).Where("updated_at < ?", cutoff).Delete(&Record{})
	if res.Error != nil {
		return 0, fmt.Errorf("reap sessions: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
