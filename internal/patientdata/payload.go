package patientdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Field limits of the patient payload.
const (
	MaxNameLen           = 50
	MaxBloodTypeLen      = 50
	MaxPreviousReportLen = 300
	MaxPhoneLen          = 20
	MaxFileLen           = 100
)

// ErrEmptyPayload is returned for a payload with no fields set.
var ErrEmptyPayload = errors.New("patient payload has no fields")

// Payload is the plaintext patient record. File carries the content
// identifier of a pinned attachment.
type Payload struct {
	Name           string `json:"name,omitempty"`
	BloodType      string `json:"blood_type,omitempty"`
	PreviousReport string `json:"previous_report,omitempty"`
	PhoneNumber    string `json:"ph_no,omitempty"`
	File           string `json:"file,omitempty"`
}

// Validate checks field lengths.
func (p *Payload) Validate() error {
	if *p == (Payload{}) {
		return ErrEmptyPayload
	}
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"name", p.Name, MaxNameLen},
		{"blood_type", p.BloodType, MaxBloodTypeLen},
		{"previous_report", p.PreviousReport, MaxPreviousReportLen},
		{"ph_no", p.PhoneNumber, MaxPhoneLen},
		{"file", p.File, MaxFileLen},
	}
	for _, f := range fields {
		if n := utf8.RuneCountInString(f.value); n > f.max {
			return fmt.Errorf("%s is %d characters, limit is %d", f.name, n, f.max)
		}
	}
	return nil
}

// Marshal encodes p as JSON.
func (p *Payload) Marshal() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return raw, nil
}

// ParsePayload decodes raw, rejecting unknown fields.
func ParsePayload(raw []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return &p, nil
}
