// Package homework holds the review-status model and turns a status into the
// chat message sent to the student.
package homework

import (
	"encoding/json"
	"strings"
)

// Status is the review state reported by the homework API.
type Status string

const (
	StatusReviewing Status = "reviewing"
	StatusRejected  Status = "rejected"
	StatusApproved  Status = "approved"
)

// Record is one homework entry of the API response.
type Record struct {
	Name   string `json:"homework_name"`
	Status Status `json:"status"`
}

// Statuses is the decoded body of the homework statuses endpoint.
//
// Code, Error and Message are only present when the API answers with an error
// envelope instead of a status list.
type Statuses struct {
	Homeworks   []Record `json:"homeworks"`
	CurrentDate *int64   `json:"current_date,omitempty"`

	Code    json.RawMessage `json:"code,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// First returns the most recent homework, if any.
func (s *Statuses) First() (Record, bool) {
	if s == nil || len(s.Homeworks) == 0 {
		return Record{}, false
	}
	return s.Homeworks[0], true
}

// IsErrorEnvelope reports whether the body carries a remote-side error.
func (s *Statuses) IsErrorEnvelope() bool {
	return s != nil && (present(s.Code) || present(s.Error))
}

func present(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	return v != "" && v != "null"
}
