package destination

import (
	"fmt"

	"threatreg/internal/config"
	"threatreg/internal/domain"
	"threatreg/internal/taxonomy"

	"github.com/charmbracelet/log"
)

// Build turns one validated configuration entry into a Destination.
func Build(cfg config.Destination) (Destination, error) {
	clientOpts := ClientOptions{
		BaseURL:            cfg.URL,
		Token:              cfg.Token(),
		Proxy:              cfg.Proxy,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	var (
		adapter Adapter
		err     error
	)
	switch cfg.Kind {
	case config.DestinationDictionary:
		opts := DictionaryOptions{}
		if cfg.Dictionary != nil {
			opts = DictionaryOptions{
				OverwriteExisting: cfg.Dictionary.OverwriteExisting,
				NeedReload:        cfg.Dictionary.NeedReload,
				Column:            cfg.Dictionary.Column,
			}
		}
		adapter, err = NewDictionaryAdapter(clientOpts, opts)
	case config.DestinationList:
		var fields []string
		if cfg.List != nil {
			fields = cfg.List.Fields
		}
		adapter, err = NewListAdapter(clientOpts, fields)
	default:
		return Destination{}, fmt.Errorf("destination: %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
	if err != nil {
		return Destination{}, fmt.Errorf("destination: %q: %w", cfg.Name, err)
	}

	identifiers := make(map[domain.IndicatorKind]string, len(cfg.Identifiers))
	for rawKind := range cfg.Identifiers {
		kind, err := taxonomy.ParseKind(rawKind)
		if err != nil {
			continue
		}
		if id, ok := cfg.Identifier(kind); ok {
			identifiers[kind] = id
		}
	}

	return Destination{
		Name:        cfg.Name,
		Kind:        cfg.Kind,
		URL:         cfg.URL,
		Adapter:     adapter,
		Identifiers: identifiers,
		Credential:  cfg.HasCredential(),
	}, nil
}

// BuildAll builds every configured destination, skipping entries that fail.
func BuildAll(entries []config.Destination) []Destination {
	out := make([]Destination, 0, len(entries))
	for _, entry := range entries {
		dest, err := Build(entry)
		if err != nil {
			log.Error("Skipping destination", "destination", entry.Name, "error", err)
			continue
		}
		out = append(out, dest)
	}
	return out
}
