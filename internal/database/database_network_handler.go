package database

import (
	"context"
	"errors"
	"fmt"

	"threatreg/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertNetwork stores record and fills its ID. The uniqueness check is the
// insert itself: an existing (network, company) pair yields domain.ErrConflict.
func InsertNetwork(ctx context.Context, record *domain.NetworkRecord) error {
	db, err := conn(ctx)
	if err != nil {
		return err
	}

	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if result.Error != nil {
		return fmt.Errorf("database: insert network: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: network %s for company %s", domain.ErrConflict, record.Network, record.Company)
	}
	return nil
}

// ListNetworks returns every network record in insertion order.
func ListNetworks(ctx context.Context) ([]domain.NetworkRecord, error) {
	db, err := conn(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]domain.NetworkRecord, 0)
	if err := db.Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("database: list networks: %w", err)
	}
	return records, nil
}

func GetNetwork(ctx context.Context, id uint64) (domain.NetworkRecord, error) {
	db, err := conn(ctx)
	if err != nil {
		return domain.NetworkRecord{}, err
	}

	var record domain.NetworkRecord
	if err := db.First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NetworkRecord{}, fmt.Errorf("%w: network %d", domain.ErrNotFound, id)
		}
		return domain.NetworkRecord{}, fmt.Errorf("database: get network: %w", err)
	}
	return record, nil
}

// ListCompanies returns the distinct owners, sorted.
func ListCompanies(ctx context.Context) ([]string, error) {
	db, err := conn(ctx)
	if err != nil {
		return nil, err
	}

	companies := make([]string, 0)
	if err := db.Model(&domain.NetworkRecord{}).
		Distinct("company").
		Order("company ASC").
		Pluck("company", &companies).Error; err != nil {
		return nil, fmt.Errorf("database: list companies: %w", err)
	}
	return companies, nil
}

func DeleteNetwork(ctx context.Context, network, company string) (int64, error) {
	db, err := conn(ctx)
	if err != nil {
		return 0, err
	}

	result := db.Where("network = ? AND company = ?", network, company).Delete(&domain.NetworkRecord{})
	return deleted(result, fmt.Sprintf("network %s for company %s", network, company))
}

func DeleteNetworkByID(ctx context.Context, id uint64) (int64, error) {
	db, err := conn(ctx)
	if err != nil {
		return 0, err
	}

	result := db.Delete(&domain.NetworkRecord{}, id)
	return deleted(result, fmt.Sprintf("network %d", id))
}

func deleted(result *gorm.DB, target string) (int64, error) {
	if result.Error != nil {
		return 0, fmt.Errorf("database: delete %s: %w", target, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("%w: %s", domain.ErrNotFound, target)
	}
	return result.RowsAffected, nil
}
