// File: internal/dto/health_response.go
package dto

// swagger:model dto.HealthResponse
type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	Database string `json:"database,omitempty" example:"connected"`
	Error    string `json:"error,omitempty"`
}

// swagger:model dto.IndexResponse
type IndexResponse struct {
	Message   string            `json:"message" example:"API is running"`
	Endpoints map[string]string `json:"endpoints"`
}
