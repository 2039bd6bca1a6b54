package models

import "time"

// DeliveryLog records one dispatch attempt (PostgreSQL)
type DeliveryLog struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	InvocationID string    `json:"invocation_id" gorm:"size:36;uniqueIndex"`
	RecordID     string    `json:"record_id" gorm:"size:128;index"`
	Source       string    `json:"source" gorm:"size:30"` // http, firestore, mongo
	Topic        string    `json:"topic" gorm:"size:255;index"`
	Type         string    `json:"type" gorm:"size:100"`
	TableID      string    `json:"table_id" gorm:"size:100"`
	OrderID      string    `json:"order_id" gorm:"size:100"`
	Outcome      Outcome   `json:"outcome" gorm:"size:20;index"`
	MessageID    string    `json:"message_id,omitempty"`
	Error        string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}
