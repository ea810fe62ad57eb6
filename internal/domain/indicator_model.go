package domain

import "time"

type IndicatorKind string

const (
	KindAddressSrc     IndicatorKind = "address-src"
	KindAddressDst     IndicatorKind = "address-dst"
	KindAddressPortSrc IndicatorKind = "address-port-src"
	KindAddressPortDst IndicatorKind = "address-port-dst"
	KindFilename       IndicatorKind = "filename"
	KindHashMD5        IndicatorKind = "hash-md5"
	KindHashSHA1       IndicatorKind = "hash-sha1"
	KindHashSHA256     IndicatorKind = "hash-sha256"
	KindDomainName     IndicatorKind = "domain-name"
)

const (
	MaxDescriptionLength = 255
	// MaxValueLength matches the value column size.
	MaxValueLength = 1024
)

// IndicatorRecord is a typed observable (address, hash, filename, domain).
type IndicatorRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Kind        IndicatorKind `gorm:"column:type;size:32;not null;uniqueIndex:idx_indicator_type_value,priority:1" json:"type"`
	Value       string        `gorm:"size:1024;not null;uniqueIndex:idx_indicator_type_value,priority:2" json:"value"`
	Description *string       `gorm:"size:255" json:"description"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (IndicatorRecord) TableName() string {
	return "indicators"
}

// DescriptionText returns the description or an empty string when none was set.
func (i IndicatorRecord) DescriptionText() string {
	if i.Description == nil {
		return ""
	}
	return *i.Description
}
