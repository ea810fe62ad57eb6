// Package destination delivers indicators to external security platforms.
package destination

import (
	"context"

	"threatreg/internal/domain"
)

// Adapter submits one indicator to one platform-local collection. Any HTTP
// response is returned as (status, body, nil); only transport failures and
// missing credentials produce an error.
type Adapter interface {
	Submit(ctx context.Context, localID string, ind domain.IndicatorRecord) (int, []byte, error)
}

// Destination is a configured, named adapter together with its mapping from
// indicator kind to the platform-local identifier.
type Destination struct {
	Name        string
	Kind        string
	URL         string
	Adapter     Adapter
	Identifiers map[domain.IndicatorKind]string
	Credential  bool
}

// Resolve returns the platform-local identifier for kind.
func (d Destination) Resolve(kind domain.IndicatorKind) (string, error) {
	id, ok := d.Identifiers[kind]
	if !ok || id == "" {
		return "", domain.ErrMappingMissing
	}
	return id, nil
}
