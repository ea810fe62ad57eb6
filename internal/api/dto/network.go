package dto

type NetworkRequest struct {
	Network     string  `json:"network"`
	Company     string  `json:"company"`
	Description *string `json:"description,omitempty"`
}

type NetworkDeleteRequest struct {
	Network string `json:"network"`
	Company string `json:"company"`
}

// NetworkSearchRequest filters networks by an address or block and by owner.
// Both fields are optional.
type NetworkSearchRequest struct {
	Query   string `json:"query,omitempty"`
	Company string `json:"company,omitempty"`
}
