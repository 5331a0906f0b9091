package dto

// HealthResponse is the liveness summary
type HealthResponse struct {
	Status              string `json:"status"`
	Service             string `json:"service"`
	Environment         string `json:"environment"`
	Store               string `json:"store"`
	EnrichmentBackend   string `json:"enrichment_backend"`
	EnrichmentEnabled   bool   `json:"enrichment_enabled"`
	EnrichmentAvailable bool   `json:"enrichment_available"`
}

// EnrichmentStatusResponse reports the LLM backend probe
type EnrichmentStatusResponse struct {
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	Backend   string `json:"backend"`
	Message   string `json:"message"`
}
