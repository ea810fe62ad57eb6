package dto

type IndicatorRequest struct {
	Type        string  `json:"type"`
	Value       string  `json:"value"`
	Description *string `json:"description,omitempty"`
}

type IndicatorDeleteRequest struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type IndicatorSearchRequest struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}
