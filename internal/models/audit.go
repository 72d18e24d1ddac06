package models

import (
	"time"

	"gorm.io/datatypes"
)

// CleanupAudit — структурированная запись одного прогона downgrade-cleanup:
// какие действия выполнены (JSON-список) и завершился ли прогон полностью.
type CleanupAudit struct {
	ID        uint   `gorm:"primaryKey"`
	AccountID string `gorm:"size:36;not null;index"`
	Trigger   string `gorm:"size:128;not null"` // webhook:<reason> | sweep | upgrade
	Tier      Tier   `gorm:"size:32;not null"`  // тариф, к лимитам которого приводили

	Actions        datatypes.JSON `gorm:"type:jsonb"`
	FullySucceeded bool           `gorm:"not null"`

	CreatedAt time.Time
}
