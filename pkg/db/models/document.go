package models

import "time"

// Document is one record of the path-addressed store, serialized as JSON.
type Document struct {
	Collection string    `gorm:"column:collection;type:varchar(64);primaryKey"`
	Key        string    `gorm:"column:doc_key;type:varchar(128);primaryKey"`
	Data       string    `gorm:"column:data;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Document) TableName() string { return "documents" }
