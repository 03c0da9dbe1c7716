package output

import "time"

// ReleaseOutput is one released value.
type ReleaseOutput struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// RunOutput is the JSON result of running a file.
type RunOutput struct {
	File     string           `json:"file"`
	Kind     string           `json:"kind"`
	Output   string           `json:"output"`
	Released []ReleaseOutput  `json:"released"`
	Error    string           `json:"error,omitempty"`
	Code     string           `json:"code,omitempty"`
	Session  string           `json:"session,omitempty"`
	Results  []ScenarioResult `json:"results,omitempty"`
}

// ScenarioResult is one checked scenario.
type ScenarioResult struct {
	Name     string        `json:"name"`
	File     string        `json:"file"`
	Passed   bool          `json:"passed"`
	Failure  string        `json:"failure,omitempty"`
	Events   int           `json:"events"`
	Duration time.Duration `json:"duration_ns"`
}

// CheckOutput is the JSON result of checking scenarios.
type CheckOutput struct {
	Results []ScenarioResult `json:"results"`
	Passed  int              `json:"passed"`
	Failed  int              `json:"failed"`
}

// SessionOutput is a recorded trace session.
type SessionOutput struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Events      int        `json:"events"`
}

// EventOutput is a recorded tracker event.
type EventOutput struct {
	Seq      int      `json:"seq"`
	Op       string   `json:"op"`
	Name     string   `json:"name,omitempty"`
	Depth    int      `json:"depth"`
	Value    string   `json:"value,omitempty"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
	Released []string `json:"released,omitempty"`
}

// TraceOutput is a session with its events.
type TraceOutput struct {
	Session SessionOutput `json:"session"`
	Events  []EventOutput `json:"events"`
}

// DemoInfo describes an embedded demonstration program.
type DemoInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
