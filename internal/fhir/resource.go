package fhir

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// ResourceObservation is the resourceType of an Observation.
const ResourceObservation = "Observation"

// Resource is a single FHIR resource as a decoded JSON object.
type Resource map[string]interface{}

// Type returns the resourceType discriminator, or "" if absent.
func (r Resource) Type() string {
	t, _ := r["resourceType"].(string)
	return t
}

// ID returns the resource id, or "" if absent.
func (r Resource) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Observation decodes r into a typed Observation.
// Only the fields needed for variant extraction are decoded; everything
// else in the resource is ignored.
func (r Resource) Observation() (*Observation, error) {
	if t := r.Type(); t != ResourceObservation {
		return nil, fmt.Errorf("resource type %q is not %s", t, ResourceObservation)
	}

	var obs Observation
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &obs,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(map[string]interface{}(r)); err != nil {
		return nil, fmt.Errorf("decode observation: %w", err)
	}
	return &obs, nil
}

// Observation is the subset of a FHIR Observation used for variant calls.
// Fields the extractor never reads are left out so that malformed values in
// them cannot fail the decode.
type Observation struct {
	ResourceType         string           `json:"resourceType"`
	Code                 CodeableConcept  `json:"code"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	Component            []Component      `json:"component,omitempty"`
}

// HasCode reports whether the Observation's code includes the given code value.
func (o *Observation) HasCode(code string) bool {
	return o.Code.HasCode(code)
}

// Component is a sub-observation of an Observation.
// ValueInteger is decoded as a float so that non-integral values can be
// told apart from integers instead of being truncated.
type Component struct {
	Code                 CodeableConcept  `json:"code"`
	ValueRange           *Range           `json:"valueRange,omitempty"`
	ValueInteger         *float64         `json:"valueInteger,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
}

// CodeableConcept is a set of codings for one concept.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
}

// HasCode reports whether any coding carries the given code value,
// regardless of its system.
func (c CodeableConcept) HasCode(code string) bool {
	for _, cd := range c.Coding {
		if cd.Code == code {
			return true
		}
	}
	return false
}

// Coding is a system/code pair.
type Coding struct {
	System string `json:"system,omitempty"`
	Code   string `json:"code,omitempty"`
}

// Range holds the low bound of a range; the high bound is not used.
type Range struct {
	Low *Quantity `json:"low,omitempty"`
}

// Quantity is a measured amount.
type Quantity struct {
	Value *float64 `json:"value,omitempty"`
}
