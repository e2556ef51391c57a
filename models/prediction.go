package models

import (
	"time"

	"gorm.io/gorm"
)

// Prediction is the stored outcome of one successful classification.
// ImagePath points at the temporary upload, which no longer exists once the row is written.
type Prediction struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         *uint     `gorm:"index" json:"-"`
	ImagePath      string    `gorm:"size:255;not null" json:"image_path"`
	PredictedClass string    `gorm:"size:100;not null" json:"predicted_class"`
	Confidence     float64   `gorm:"not null" json:"confidence"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

func (p *Prediction) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return nil
}

// All lists the models that are auto-migrated at boot.
func All() []interface{} {
	return []interface{}{&User{}, &Prediction{}}
}
