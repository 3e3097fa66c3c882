// Package synth is the resilience gateway around the external driver
// synthesis worker: every outbound call gets a bounded timeout, retry with
// backoff on transient failures, and circuit breaking; health probing is
// cached so concurrent callers share one probe.
package synth

import "time"

// SynthesizeRequest is the payload for the worker's synthesize-driver
// endpoint.
type SynthesizeRequest struct {
	// ProtocolText is the extracted protocol documentation
	ProtocolText string `json:"protocol_text"`

	// PreviousExperience carries failure context from earlier attempts;
	// empty on a clean first attempt
	PreviousExperience string `json:"previous_experience,omitempty"`

	// TargetLanguage selects the driver language ("python" or "csharp")
	TargetLanguage string `json:"target_language"`

	// DeviceName labels the device/inverter
	DeviceName string `json:"device_name,omitempty"`
}

// InternalAttempt is one entry of the worker's internal attempt trace
// (parser/coder/tester agents). Opaque to the orchestration core beyond
// persistence and display.
type InternalAttempt struct {
	AttemptNumber int    `json:"attempt_number"`
	AgentName     string `json:"agent_name"`
	Action        string `json:"action"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"error_message,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
}

// RegisterTestResult reports the worker's validation of the generated
// driver against its Modbus simulator, with byte-level evidence.
type RegisterTestResult struct {
	Success          bool     `json:"success"`
	TestedRegisters  []string `json:"tested_registers"`
	ExpectedBytes    string   `json:"expected_bytes,omitempty"`
	ActualBytes      string   `json:"actual_bytes,omitempty"`
	ErrorMessage     string   `json:"error_message,omitempty"`
	ErrorBytePosition *int    `json:"error_byte_position,omitempty"`
}

// SynthesizeResponse is the worker's reply. Success false means the worker
// completed but the generated driver failed validation (a domain failure,
// not a transport error).
type SynthesizeResponse struct {
	Success               bool                     `json:"success"`
	DriverCode            string                   `json:"driver_code,omitempty"`
	TargetLanguage        string                   `json:"target_language"`
	ConfidenceScore       float64                  `json:"confidence_score"`
	InternalAttempts      []InternalAttempt        `json:"internal_attempts"`
	TotalInternalAttempts int                      `json:"total_internal_attempts"`
	TestResult            *RegisterTestResult      `json:"test_result,omitempty"`
	ExtractedRegisters    []map[string]interface{} `json:"extracted_registers,omitempty"`
	ErrorMessage          string                   `json:"error_message,omitempty"`
	ExperienceID          string                   `json:"experience_id,omitempty"`
}

// HealthStatus is the cached result of a worker health probe.
type HealthStatus struct {
	Healthy        bool
	Message        string
	ResponseTimeMs int64
	Err            error
	CheckedAt      time.Time
}
