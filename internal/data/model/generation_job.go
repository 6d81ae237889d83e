package model

import (
	"time"

	"gorm.io/datatypes"
)

// GenerationJob 生成任务表
type GenerationJob struct {
	GenerationJobID string         `gorm:"primaryKey;type:varchar(36)"`
	AccountID       string         `gorm:"type:varchar(36);not null;index:idx_account_date,priority:1"`
	Kind            string         `gorm:"type:varchar(32);not null"`
	ModelID         string         `gorm:"type:varchar(128);not null"`
	Status          string         `gorm:"type:varchar(16);not null;index"`
	CostTokens      int64          `gorm:"not null"`
	InputJSON       datatypes.JSON `gorm:"column:input_json"`
	ResultJSON      datatypes.JSON `gorm:"column:result_json"`
	ErrorMessage    string         `gorm:"type:varchar(512)"`
	ProviderReqID   string         `gorm:"type:varchar(64);index"`
	StatusURL       string         `gorm:"type:varchar(512)"`
	ResponseURL     string         `gorm:"type:varchar(512)"`
	CancelURL       string         `gorm:"type:varchar(512)"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index:idx_account_date,priority:2"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (GenerationJob) TableName() string {
	return "generation_job"
}
