package destination

import (
	"context"
	"net/url"

	"threatreg/internal/domain"
)

const ListDefaultPort = "8443"

var defaultListFields = []string{"type", "value", "description"}

type listEntry struct {
	Fields []string `json:"fields"`
}

type listPayload struct {
	Fields  []string    `json:"fields"`
	Entries []listEntry `json:"entries"`
}

// ListAdapter appends indicators as entries of a SIEM active list. Entry
// columns are always kind, value and description; Fields only renames them.
type ListAdapter struct {
	client *client
	fields []string
}

func NewListAdapter(clientOpts ClientOptions, fields []string) (*ListAdapter, error) {
	if clientOpts.DefaultPort == "" {
		clientOpts.DefaultPort = ListDefaultPort
	}
	c, err := newClient(clientOpts)
	if err != nil {
		return nil, err
	}
	if len(fields) != len(defaultListFields) {
		fields = defaultListFields
	}
	return &ListAdapter{client: c, fields: append([]string(nil), fields...)}, nil
}

func (a *ListAdapter) Submit(ctx context.Context, localID string, ind domain.IndicatorRecord) (int, []byte, error) {
	payload := listPayload{
		Fields: a.fields,
		Entries: []listEntry{
			{Fields: []string{string(ind.Kind), ind.Value, ind.DescriptionText()}},
		},
	}
	target := a.client.endpoint("/detect-api/rest/activelists/"+url.PathEscape(localID)+"/entries", nil)
	return a.client.postJSON(ctx, target, payload)
}
