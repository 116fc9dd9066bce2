package dto

// ClimateMetadataRequest - path parameters of GET /api/v1/climate-metadata/:variable/:ssp
type ClimateMetadataRequest struct {
	Variable string `json:"variable" validate:"required"`
	SSP      string `json:"ssp" validate:"required"`
	Kind     string `json:"kind,omitempty" validate:"omitempty,oneof=decade year"`
}

// ClimateMetadataResponse - the dimension row of a (variable, ssp) pair
type ClimateMetadataResponse struct {
	ID       int64                  `json:"id"`
	Variable string                 `json:"variable"`
	SSP      int                    `json:"ssp"`
	Metadata map[string]interface{} `json:"metadata"`
}
