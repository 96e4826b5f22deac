package domain

// Species is one record of the species distribution map.
type Species struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Scientific string  `json:"scientific"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Confidence int     `json:"confidence"`
	Status     string  `json:"status" enum:"LC,NT,VU,EN,CR"`
	Type       string  `json:"type"`
	Abundance  int     `json:"abundance"`
	LastSeen   string  `json:"lastSeen" format:"date-time"`
}

// Hotspot is a biodiversity hotspot summary for one location.
type Hotspot struct {
	Location       string  `json:"location"`
	DiversityIndex float64 `json:"diversity_index"`
	SpeciesCount   int     `json:"species_count"`
}

// Reading is the current value of one oceanographic parameter.
type Reading struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Trend     float64 `json:"trend"`
	Status    string  `json:"status"`
}

// Model is an entry of the model registry.
type Model struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Status      string  `json:"status" enum:"trained,training,deployed"`
	Accuracy    float64 `json:"accuracy"`
	LastTrained string  `json:"last_trained" format:"date-time"`
}

// Activity is one entry in the recent-activity feed. Only the fields
// relevant for the activity type are set.
type Activity struct {
	ID         int64   `json:"id"`
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	Timestamp  string  `json:"timestamp" format:"date-time"`
	Confidence *int    `json:"confidence,omitempty"`
	Accuracy   *int    `json:"accuracy,omitempty"`
	Severity   *string `json:"severity,omitempty"`
}

// Upload records metadata of one accepted sequence file.
type Upload struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	UploadTime  string `json:"upload_time" format:"date-time"`
}

// Task run kinds.
const (
	KindEDNAAnalysis  = "edna_analysis"
	KindModelTraining = "model_training"
)

// Task run statuses.
const (
	RunStarted   = "started"
	RunRunning   = "running"
	RunCompleted = "completed"
)

// TaskRun is the live state of a simulated background job. CurrentStage
// counts completed stages, so progress is CurrentStage/TotalStages.
type TaskRun struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind" enum:"edna_analysis,model_training"`
	Subject      string  `json:"subject"`
	Status       string  `json:"status" enum:"started,running,completed"`
	CurrentStage int     `json:"current_stage"`
	TotalStages  int     `json:"total_stages"`
	StageName    string  `json:"stage_name,omitempty"`
	ParamsJSON   string  `json:"params_json,omitempty"`
	ResultJSON   string  `json:"result_json,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
	CompletedAt  *string `json:"completed_at,omitempty" format:"date-time"`
}

// Event is one row of the append-only event log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
