package dto

type RenderResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type JobResponse struct {
	ID         string                 `json:"id"`
	Status     string                 `json:"status"`
	VideoURL   string                 `json:"videoUrl,omitempty"`
	Error      string                 `json:"error,omitempty"`
	CreatedAt  int64                  `json:"createdAt"`
	UpdatedAt  int64                  `json:"updatedAt"`
	InputProps map[string]interface{} `json:"inputProps"`
}

type StatsResponse struct {
	TotalJobs      int            `json:"totalJobs"`
	CountsByStatus map[string]int `json:"countsByStatus"`
	OldestAgeHours float64        `json:"oldestAgeHours"`
	NewestAgeHours float64        `json:"newestAgeHours"`
}

type UploadResponse struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
