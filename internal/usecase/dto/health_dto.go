package dto

// HealthResponse - body of GET /api/v1/health
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}
