package model

import "encoding/json"

// TestSessionData is the read-only bag of completed test results for one
// session: a mapping from test type to the opaque result payload consumed by
// the section renderer.
type TestSessionData struct {
	SessionCode   string                     `json:"session_code"`
	RequesterName *string                    `json:"requester_name,omitempty"`
	Results       map[string]json.RawMessage `json:"results"`
}

// HasResult reports whether the session contains a completed result for the test type.
func (s *TestSessionData) HasResult(testType string) bool {
	_, ok := s.Results[testType]
	return ok
}

// Result returns the raw result payload for the test type, or nil when absent.
func (s *TestSessionData) Result(testType string) json.RawMessage {
	return s.Results[testType]
}
