package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"threatreg/internal/domain"
	"threatreg/internal/taxonomy"
)

const (
	DestinationDictionary = "dictionary"
	DestinationList       = "list"

	// TokenEnvPrefix bounds which environment variables a destination may
	// read its credential from.
	TokenEnvPrefix = "THREATREG_DEST_"
)

// Destination is one external platform indicators are delivered to. Exactly
// one of Dictionary or List applies, selected by Kind.
type Destination struct {
	Name               string            `json:"name" yaml:"name"`
	Kind               string            `json:"kind" yaml:"kind"`
	URL                string            `json:"url" yaml:"url"`
	TokenEnv           string            `json:"token_env" yaml:"token_env"`
	Proxy              string            `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	Identifiers        map[string]string `json:"identifiers" yaml:"identifiers"`

	Dictionary *DictionaryOptions `json:"dictionary,omitempty" yaml:"dictionary,omitempty"`
	List       *ListOptions       `json:"list,omitempty" yaml:"list,omitempty"`
}

type DictionaryOptions struct {
	OverwriteExisting bool   `json:"overwrite_existing" yaml:"overwrite_existing"`
	NeedReload        bool   `json:"need_reload" yaml:"need_reload"`
	Column            string `json:"column,omitempty" yaml:"column,omitempty"`
}

type ListOptions struct {
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Identifier returns the destination-local id for kind.
func (d Destination) Identifier(kind domain.IndicatorKind) (string, bool) {
	id, ok := d.Identifiers[string(kind)]
	id = strings.TrimSpace(id)
	return id, ok && id != ""
}

// Token returns the credential read from the environment variable named by
// TokenEnv. Names outside TokenEnvPrefix yield no credential.
func (d Destination) Token() string {
	if !validTokenEnv(d.TokenEnv) {
		return ""
	}
	return strings.TrimSpace(os.Getenv(d.TokenEnv))
}

func (d Destination) HasCredential() bool {
	return d.Token() != ""
}

// MappedKinds lists the indicator kinds this destination has an identifier
// for, sorted.
func (d Destination) MappedKinds() []string {
	kinds := make([]string, 0, len(d.Identifiers))
	for kind, id := range d.Identifiers {
		if strings.TrimSpace(id) != "" {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// Validate returns cfg with invalid destinations removed and dispatch limits
// defaulted, plus one error per dropped destination.
func Validate(cfg Config) (Config, []error) {
	out := cfg
	out.Destinations = make([]Destination, 0, len(cfg.Destinations))

	if out.Dispatch.MaxConcurrent <= 0 {
		out.Dispatch.MaxConcurrent = DefaultMaxConcurrent
	}
	if out.Dispatch.PerDispatchLimit <= 0 {
		out.Dispatch.PerDispatchLimit = DefaultPerDispatchLimit
	}

	var problems []error
	seen := make(map[string]struct{}, len(cfg.Destinations))

	for i, dest := range cfg.Destinations {
		dest.Name = strings.TrimSpace(dest.Name)
		dest.Kind = strings.ToLower(strings.TrimSpace(dest.Kind))

		if err := validateDestination(dest); err != nil {
			problems = append(problems, fmt.Errorf("config: destination %d (%q): %w", i, dest.Name, err))
			continue
		}
		if _, dup := seen[dest.Name]; dup {
			problems = append(problems, fmt.Errorf("config: destination %d: duplicate name %q", i, dest.Name))
			continue
		}
		seen[dest.Name] = struct{}{}

		for kind, id := range dest.Identifiers {
			if _, err := taxonomy.ParseKind(kind); err != nil {
				log.Warn("Destination maps an unknown indicator type", "destination", dest.Name, "type", kind)
				continue
			}
			if dest.Kind == DestinationDictionary {
				if _, err := uuid.Parse(id); err != nil {
					log.Warn("Dictionary identifier is not a UUID", "destination", dest.Name, "type", kind, "id", id)
				}
			}
		}

		out.Destinations = append(out.Destinations, dest)
	}

	return out, problems
}

func validateDestination(dest Destination) error {
	if dest.Name == "" {
		return fmt.Errorf("name is required")
	}

	switch dest.Kind {
	case DestinationDictionary:
		if dest.List != nil {
			return fmt.Errorf("list options set on a dictionary destination")
		}
	case DestinationList:
		if dest.Dictionary != nil {
			return fmt.Errorf("dictionary options set on a list destination")
		}
	default:
		return fmt.Errorf("unknown kind %q", dest.Kind)
	}

	parsed, err := url.Parse(strings.TrimSpace(dest.URL))
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid url %q", dest.URL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}

	if dest.TokenEnv != "" && !validTokenEnv(dest.TokenEnv) {
		return fmt.Errorf("token_env %q must start with %s", dest.TokenEnv, TokenEnvPrefix)
	}

	if len(dest.Identifiers) == 0 {
		log.Warn("Destination maps no indicator types", "destination", dest.Name)
	}

	return nil
}

func validTokenEnv(name string) bool {
	return strings.HasPrefix(name, TokenEnvPrefix) && len(name) > len(TokenEnvPrefix)
}
