package models

// AnalysisRequest is the logical inference input: raw image bytes plus the
// declared MIME type and optional user context.
type AnalysisRequest struct {
	ImageBytes   []byte
	MimeType     string
	AnalysisType AnalysisType
	UserAge      *int
	Symptoms     []string
	CyclePhase   string
}

// ArtifactStatus reports availability of one persisted model artifact.
type ArtifactStatus struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Available bool   `json:"available"`
}

// DetectorStatus reports reachability of the remote region-detection model
// server. Absent when no remote detector is configured.
type DetectorStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ModelsStatus is the eager "models ready" signal exposed to callers before
// they submit work.
type ModelsStatus struct {
	Ready     bool             `json:"models_ready"`
	Artifacts []ArtifactStatus `json:"artifacts"`
	Detector  *DetectorStatus  `json:"detector,omitempty"`
}

// ErrorResponse is the JSON error envelope returned by the transport layer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
