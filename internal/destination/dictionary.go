package destination

import (
	"context"
	"net/url"

	"threatreg/internal/domain"
)

const (
	DictionaryDefaultPort   = "7223"
	dictionaryAddRowPath    = "/api/v2.1/dictionaries/add_row"
	defaultDictionaryColumn = "description"
)

type DictionaryOptions struct {
	OverwriteExisting bool
	NeedReload        bool
	// Column receives the indicator description.
	Column string
}

// DictionaryAdapter adds indicators as rows of a SIEM dictionary keyed by the
// indicator value.
type DictionaryAdapter struct {
	client *client
	opts   DictionaryOptions
}

func NewDictionaryAdapter(clientOpts ClientOptions, opts DictionaryOptions) (*DictionaryAdapter, error) {
	if clientOpts.DefaultPort == "" {
		clientOpts.DefaultPort = DictionaryDefaultPort
	}
	c, err := newClient(clientOpts)
	if err != nil {
		return nil, err
	}
	if opts.Column == "" {
		opts.Column = defaultDictionaryColumn
	}
	return &DictionaryAdapter{client: c, opts: opts}, nil
}

func (a *DictionaryAdapter) Submit(ctx context.Context, localID string, ind domain.IndicatorRecord) (int, []byte, error) {
	query := url.Values{}
	query.Set("dictionaryID", localID)
	query.Set("rowKey", ind.Value)
	query.Set("overwriteExist", flag(a.opts.OverwriteExisting))
	query.Set("needReload", flag(a.opts.NeedReload))

	row := map[string]string{a.opts.Column: ind.DescriptionText()}
	return a.client.postJSON(ctx, a.client.endpoint(dictionaryAddRowPath, query), row)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
