package models

import "time"

// ConfigurationModel is one persisted key/value setting
type ConfigurationModel struct {
	Name      string    `gorm:"type:varchar(64);primaryKey"`
	Value     string    `gorm:"type:text;not null;default:''"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConfigurationModel) TableName() string {
	return "configuration"
}
