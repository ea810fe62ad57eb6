package dto

type CreatedResponse struct {
	ID      uint64 `json:"id"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// DestinationInfo describes a configured destination without its credential.
type DestinationInfo struct {
	Name                 string   `json:"name"`
	Kind                 string   `json:"kind"`
	URL                  string   `json:"url"`
	MappedTypes          []string `json:"mapped_types"`
	CredentialConfigured bool     `json:"credential_configured"`
}
