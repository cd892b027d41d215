package api

const (
	CategoryInvalidRequest  = "invalid_request"
	CategoryPayloadTooLarge = "payload_too_large"
	CategoryUploadFailed    = "upload_failed"
	CategoryBusy            = "busy"
	CategoryCanceled        = "canceled"
	CategoryProcessFailed   = "process_failed"
	CategoryTimeout         = "timeout"
	CategoryMissingOutput   = "missing_output"
	CategoryNotFound        = "not_found"
	CategoryInternal        = "internal"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

type LipSyncParams struct {
	Checkpoint string `schema:"checkpoint"`
}

type UpscaleParams struct {
	UpscaleFactor *float64 `schema:"upscale_factor"`
	EnhanceFace   *bool    `schema:"enhance_face"`
}

type Checkpoint struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CatalogResponse struct {
	Checkpoints          []Checkpoint `json:"checkpoints"`
	DefaultCheckpoint    string       `json:"default_checkpoint"`
	UpscaleFactors       []float64    `json:"upscale_factors"`
	DefaultUpscaleFactor float64      `json:"default_upscale_factor"`
}
