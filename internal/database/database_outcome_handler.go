package database

import (
	"context"
	"fmt"

	"threatreg/internal/domain"
)

func InsertDeliveryOutcome(ctx context.Context, outcome *domain.DeliveryOutcome) error {
	db, err := conn(ctx)
	if err != nil {
		return err
	}

	if err := db.Create(outcome).Error; err != nil {
		return fmt.Errorf("database: insert delivery outcome: %w", err)
	}
	return nil
}

// ListDeliveryOutcomes returns the outcomes recorded for one indicator, oldest
// first. The indicator itself must exist.
func ListDeliveryOutcomes(ctx context.Context, indicatorID uint64) ([]domain.DeliveryOutcome, error) {
	if _, err := GetIndicator(ctx, indicatorID); err != nil {
		return nil, err
	}

	db, err := conn(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]domain.DeliveryOutcome, 0)
	if err := db.Where("indicator_id = ?", indicatorID).Order("id ASC").Find(&outcomes).Error; err != nil {
		return nil, fmt.Errorf("database: list delivery outcomes: %w", err)
	}
	return outcomes, nil
}

// Outcomes adapts the package-level store to the dispatch recorder interface.
type Outcomes struct{}

func (Outcomes) RecordDeliveryOutcome(ctx context.Context, outcome domain.DeliveryOutcome) error {
	return InsertDeliveryOutcome(ctx, &outcome)
}
