package models

// Health is the liveness response.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// Progress is the live state of the running backfill.
type Progress struct {
	RunID        string    `json:"runId"`
	StartedAt    Timestamp `json:"startedAt"`
	PointsTotal  int       `json:"pointsTotal"`
	PointsDone   int       `json:"pointsDone"`
	CurrentPoint string    `json:"currentPoint,omitempty"`
	WindowsDone  int       `json:"windowsDone"`
	WindowsTotal int       `json:"windowsTotal"`
	PointRecords int       `json:"pointRecords"`
	TotalRecords int       `json:"totalRecords"`
	Checkpoints  int       `json:"checkpoints"`
	Finished     bool      `json:"finished"`
	LastError    string    `json:"lastError,omitempty"`
}

// ProviderStatus represents the status of a remote source.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	Calls         int          `json:"calls"`
	Failures      int          `json:"failures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// ProviderList is the response of the providers endpoint.
type ProviderList struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Providers []ProviderStatus `json:"providers"`
}
