package domain

import "time"

// MaxCompanyLength matches the company column size.
const MaxCompanyLength = 255

// NetworkRecord maps a CIDR block to the company that owns it.
type NetworkRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// Network holds the canonical block string (e.g. 192.0.2.0/24, 2001:db8::/32).
	Network     string  `gorm:"size:64;not null;uniqueIndex:idx_network_company,priority:1" json:"network"`
	Company     string  `gorm:"size:255;not null;uniqueIndex:idx_network_company,priority:2;index" json:"company"`
	Description *string `gorm:"size:1024" json:"description"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (NetworkRecord) TableName() string {
	return "networks"
}
