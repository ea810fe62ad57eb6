package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"threatreg/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// InsertIndicator stores record and fills its ID. An existing (type, value)
// pair yields domain.ErrConflict.
func InsertIndicator(ctx context.Context, record *domain.IndicatorRecord) error {
	db, err := conn(ctx)
	if err != nil {
		return err
	}

	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if result.Error != nil {
		return fmt.Errorf("database: insert indicator: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s indicator %s", domain.ErrConflict, record.Kind, record.Value)
	}
	return nil
}

func ListIndicators(ctx context.Context) ([]domain.IndicatorRecord, error) {
	return SearchIndicators(ctx, "", "")
}

// SearchIndicators filters by exact kind and by a case-insensitive substring
// of the value. Empty arguments disable the corresponding filter.
func SearchIndicators(ctx context.Context, kind domain.IndicatorKind, value string) ([]domain.IndicatorRecord, error) {
	db, err := conn(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&domain.IndicatorRecord{})
	if kind != "" {
		query = query.Where("type = ?", kind)
	}
	if value != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(value)) + "%"
		query = query.Where(`LOWER(value) LIKE ? ESCAPE '\'`, pattern)
	}

	records := make([]domain.IndicatorRecord, 0)
	if err := query.Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("database: search indicators: %w", err)
	}
	return records, nil
}

func GetIndicator(ctx context.Context, id uint64) (domain.IndicatorRecord, error) {
	db, err := conn(ctx)
	if err != nil {
		return domain.IndicatorRecord{}, err
	}

	var record domain.IndicatorRecord
	if err := db.First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.IndicatorRecord{}, fmt.Errorf("%w: indicator %d", domain.ErrNotFound, id)
		}
		return domain.IndicatorRecord{}, fmt.Errorf("database: get indicator: %w", err)
	}
	return record, nil
}

func DeleteIndicator(ctx context.Context, kind domain.IndicatorKind, value string) (int64, error) {
	db, err := conn(ctx)
	if err != nil {
		return 0, err
	}

	result := db.Where("type = ? AND value = ?", kind, value).Delete(&domain.IndicatorRecord{})
	return deleted(result, fmt.Sprintf("%s indicator %s", kind, value))
}

func DeleteIndicatorByID(ctx context.Context, id uint64) (int64, error) {
	db, err := conn(ctx)
	if err != nil {
		return 0, err
	}

	result := db.Delete(&domain.IndicatorRecord{}, id)
	return deleted(result, fmt.Sprintf("indicator %d", id))
}
