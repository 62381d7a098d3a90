package model

import (
	"context"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserPreference is the model a user picked for one model type.
type UserPreference struct {
	Owner       string `gorm:"primaryKey;type:varchar(128)"`
	ModelType   string `gorm:"primaryKey;type:varchar(16)"`
	Model       string `gorm:"type:varchar(128);not null"`
	UpdatedTime int64  `gorm:"bigint"`
}

// GetModel returns the stored preference or "" when none is set.
func (s *Store) GetModel(ctx context.Context, owner, modelType string) (string, error) {
	var pref UserPreference
	err := s.db.WithContext(ctx).
		Where("owner = ? AND model_type = ?", owner, modelType).
		Take(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "load %s model of %s", modelType, owner)
	}
	return pref.Model, nil
}

func (s *Store) SetModel(ctx context.Context, owner, modelType, model string) error {
	pref := UserPreference{
		Owner:       owner,
		ModelType:   modelType,
		Model:       model,
		UpdatedTime: s.nowMilli(),
	}
	err := withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "model_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"model", "updated_time"}),
		}).Create(&pref).Error
	})
	return errors.Wrapf(err, "set %s model of %s", modelType, owner)
}
