package domain

import "time"

// DeliveryOutcome records one attempt to push an indicator to one destination.
// Status is nil when no HTTP response was received.
type DeliveryOutcome struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	IndicatorID uint64 `gorm:"not null;index" json:"indicator_id"`

	// Deleting an indicator removes its outcomes with it.
	Indicator *IndicatorRecord `gorm:"foreignKey:IndicatorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	Destination string  `gorm:"size:255;not null" json:"destination"`
	Status      *int    `json:"status"`
	Error       *string `gorm:"size:2048" json:"error"`

	AttemptedAt time.Time `gorm:"autoCreateTime" json:"attempted_at"`
}

func (DeliveryOutcome) TableName() string {
	return "delivery_outcomes"
}

func (o DeliveryOutcome) Succeeded() bool {
	return o.Status != nil && *o.Status >= 200 && *o.Status < 300 && o.Error == nil
}
