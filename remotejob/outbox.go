package remotejob

import (
	"time"

	log "attendserver/cloudlog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OutboxMessage is an event waiting to be republished.
type OutboxMessage struct {
	ID        uint      `gorm:"primarykey"`
	Topic     string    `gorm:"not null;index"`
	Payload   []byte    `gorm:"not null"`
	Attempts  int       `gorm:"not null;default:1"`
	LastError string
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// Outbox is a local SQLite table of undelivered events.
type Outbox struct {
	db *gorm.DB
}

// OpenOutbox opens (creating if needed) the SQLite outbox at path.
func OpenOutbox(path string) (*Outbox, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewOutbox(db)
}

// NewOutbox migrates the outbox table on db.
func NewOutbox(db *gorm.DB) (*Outbox, error) {
	if err := db.AutoMigrate(&OutboxMessage{}); err != nil {
		log.WithError(err).Error("Failed to auto-migrate outbox_messages table")
		return nil, err
	}
	return &Outbox{db: db}, nil
}

// Add stores payload with the error that kept it from being delivered.
func (o *Outbox) Add(topic string, payload []byte, cause error) error {
	msg := &OutboxMessage{Topic: topic, Payload: payload, Attempts: 1}
	if cause != nil {
		msg.LastError = cause.Error()
	}
	return o.db.Create(msg).Error
}

// Pending gives up to limit stored messages, oldest first.
func (o *Outbox) Pending(limit int) ([]OutboxMessage, error) {
	var msgs []OutboxMessage
	err := o.db.Order("id asc").Limit(limit).Find(&msgs).Error
	return msgs, err
}

// Remove deletes a delivered message.
func (o *Outbox) Remove(id uint) error {
	return o.db.Delete(&OutboxMessage{}, id).Error
}

// MarkFailed records another failed delivery attempt.
func (o *Outbox) MarkFailed(id uint, cause error) error {
	return o.db.Model(&OutboxMessage{}).Where("id = ?", id).Updates(map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": cause.Error(),
	}).Error
}

// Len counts stored messages.
func (o *Outbox) Len() (int64, error) {
	var n int64
	err := o.db.Model(&OutboxMessage{}).Count(&n).Error
	return n, err
}

// Close closes the underlying database.
func (o *Outbox) Close() error {
	sqlDB, err := o.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
