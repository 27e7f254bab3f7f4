// Package schema declares the structured-output contract for the plant
// analysis call. The same declarative field tree is handed to the model as a
// response-schema constraint and used to validate what comes back, so the two
// code paths can never drift apart.
package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Field types, mirroring the provider's OpenAPI-subset schema vocabulary.
const (
	TypeString  = "STRING"
	TypeBoolean = "BOOLEAN"
	TypeInteger = "INTEGER"
	TypeArray   = "ARRAY"
	TypeObject  = "OBJECT"
)

// Field describes one node of the contract: its type, whether consumers may
// rely on it being present, and the constraints passed to the model.
// NonEmpty additionally rejects blank strings during validation; it is a
// local constraint and is not sent to the provider.
type Field struct {
	Type        string
	Description string
	Enum        []string
	Items       *Field
	Properties  map[string]Field
	Required    []string
	NonEmpty    bool
}

// MarshalJSON renders the field in the wire form expected by the provider's
// responseSchema parameter.
func (f Field) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": f.Type}
	if f.Description != "" {
		m["description"] = f.Description
	}
	if len(f.Enum) > 0 {
		m["enum"] = f.Enum
	}
	if f.Items != nil {
		m["items"] = *f.Items
	}
	if len(f.Properties) > 0 {
		m["properties"] = f.Properties
	}
	if len(f.Required) > 0 {
		m["required"] = f.Required
	}
	return json.Marshal(m)
}

var directionEnum = []string{
	"North", "North-East", "East", "South-East",
	"South", "South-West", "West", "North-West",
}

// PlantReport returns the contract for the analysis response.
func PlantReport() Field {
	return Field{
		Type: TypeObject,
		Properties: map[string]Field{
			"isMatch":             {Type: TypeBoolean, Description: "True if the plant is successfully identified. False if ambiguous or mismatch."},
			"verificationMessage": {Type: TypeString, Description: "Explanation of identification or mismatch."},
			"commonName":          {Type: TypeString, Description: "Common name of the plant identified"},
			"scientificName":      {Type: TypeString, Description: "Scientific name of the plant"},
			"shortDescription":    {Type: TypeString, Description: "A brief, engaging description (2-3 sentences)."},
			"careInstructions": {
				Type: TypeObject,
				Properties: map[string]Field{
					"water":       {Type: TypeString, Description: "Watering frequency and advice.", NonEmpty: true},
					"sunlight":    {Type: TypeString, Description: "Sunlight exposure requirements.", NonEmpty: true},
					"temperature": {Type: TypeString, Description: "Ideal temperature range.", NonEmpty: true},
					"soil":        {Type: TypeString, Description: "Soil type preferences.", NonEmpty: true},
					"fertilizer":  {Type: TypeString, Description: "Fertilizer recommendations.", NonEmpty: true},
					"pruning":     {Type: TypeString, Description: "Pruning advice (optional)."},
				},
				Required: []string{"water", "sunlight", "temperature", "soil", "fertilizer"},
			},
			"funFact":   {Type: TypeString, Description: "An interesting fact."},
			"toxicity":  {Type: TypeString, Description: "Toxicity info."},
			"vastuTips": {Type: TypeString, Description: "General summary of Vastu advice."},
			"vastuDetails": {
				Type: TypeObject,
				Properties: map[string]Field{
					"bestDirections": {
						Type:        TypeArray,
						Items:       &Field{Type: TypeString, Enum: directionEnum},
						Description: "List of optimal directions for placing the plant.",
					},
					"avoidDirections": {
						Type:        TypeArray,
						Items:       &Field{Type: TypeString, Enum: directionEnum},
						Description: "List of directions to avoid.",
					},
					"energyType":      {Type: TypeString, Description: "Type of energy this plant brings (e.g., 'Wealth', 'Calm', 'Health')."},
					"placementReason": {Type: TypeString, Description: "Detailed explanation of why these directions are chosen."},
				},
				Required: []string{"bestDirections", "energyType", "placementReason"},
			},
			"stepByStepGuide": {
				Type:        TypeArray,
				Items:       &Field{Type: TypeString},
				Description: "A simple comprehensive guide formatted exactly as 'Point 1: ...', 'Point 2: ...', etc. covering placement, watering, and care.",
			},
			"healthAssessment": {
				Type: TypeObject,
				Properties: map[string]Field{
					"status": {
						Type:        TypeString,
						Enum:        []string{"HEALTHY", "NEEDS_ATTENTION", "SICK"},
						Description: "Overall health verdict. If the plant looks vibrant with no spots/yellowing, it is HEALTHY.",
					},
					"issues": {
						Type:        TypeArray,
						Items:       &Field{Type: TypeString},
						Description: "List of visual symptoms (e.g., 'Yellow leaves', 'Brown spots'). Return empty array if healthy.",
					},
					"remedy":            {Type: TypeString, Description: "Brief summary of the cure or maintenance."},
					"detailedDiagnosis": {Type: TypeString, Description: "A detailed explanation of the condition and its likely root cause."},
					"actionableSteps": {
						Type:        TypeArray,
						Items:       &Field{Type: TypeString},
						Description: "A specific checklist of actions to take immediately.",
					},
					"potentialPests": {
						Type:        TypeArray,
						Items:       &Field{Type: TypeString},
						Description: "Specific pests if detected or suspected. Empty if none.",
					},
					"confidence": {Type: TypeInteger, Description: "Confidence score (0-100) of the health diagnosis."},
				},
				Required: []string{"status", "issues", "remedy", "detailedDiagnosis", "actionableSteps", "potentialPests", "confidence"},
			},
		},
		Required: []string{
			"isMatch", "verificationMessage", "commonName", "scientificName",
			"shortDescription", "careInstructions", "funFact", "toxicity",
			"vastuTips", "vastuDetails", "stepByStepGuide", "healthAssessment",
		},
	}
}

// Validate checks raw against the contract. Every required field must be
// present, present fields must have the declared JSON type, and NonEmpty
// strings must not be blank. No defaults are synthesized.
func Validate(contract Field, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return validate(contract, v, "$")
}

func validate(f Field, v any, path string) error {
	switch f.Type {
	case TypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("field %s: expected object", path)
		}
		for _, name := range f.Required {
			child, present := m[name]
			if !present {
				return fmt.Errorf("missing required field %s.%s", path, name)
			}
			if err := validate(f.Properties[name], child, path+"."+name); err != nil {
				return err
			}
		}
		for name, cf := range f.Properties {
			if slices.Contains(f.Required, name) {
				continue
			}
			if child, present := m[name]; present {
				if err := validate(cf, child, path+"."+name); err != nil {
					return err
				}
			}
		}
	case TypeArray:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("field %s: expected array", path)
		}
		if f.Items != nil {
			for i, item := range items {
				if err := validate(*f.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %s: expected string", path)
		}
		if f.NonEmpty && strings.TrimSpace(s) == "" {
			return fmt.Errorf("field %s must not be blank", path)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("field %s: expected boolean", path)
		}
	case TypeInteger:
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("field %s: expected number", path)
		}
	}
	return nil
}
