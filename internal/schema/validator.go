// internal/schema/validator.go
// Package schema provides JSON schema validation for admin create payloads.
// It ensures submitted monasteries and audio guides conform to their schemas
// before anything reaches the store.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Payload kinds accepted by the validator.
const (
	KindMonastery  = "monastery"
	KindAudioGuide = "audio-guide"
)

// SupportedKinds lists the payload kinds that can be validated.
var SupportedKinds = map[string]bool{
	KindMonastery:  true,
	KindAudioGuide: true,
}

// Validator validates admin payloads against JSON schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator creates a new schema validator with all schemas compiled.
func NewValidator() (*Validator, error) {
	v := &Validator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
	if err := v.loadSchemas(); err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	return v, nil
}

// loadSchemas compiles the embedded schemas.
// The coordinate pair is [longitude, latitude]; the bounds below encode that
// order (first element ±180, second ±90).
func (v *Validator) loadSchemas() error {
	monasterySchema := `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 2, "maxLength": 128},
			"description": {"type": "string", "maxLength": 4096},
			"shortDescription": {"type": "string", "maxLength": 512},
			"location": {
				"type": "object",
				"required": ["coordinates"],
				"properties": {
					"coordinates": {
						"type": "array",
						"minItems": 2,
						"maxItems": 2,
						"items": [
							{"type": "number", "minimum": -180, "maximum": 180},
							{"type": "number", "minimum": -90, "maximum": 90}
						]
					}
				}
			},
			"address": {"type": "string", "maxLength": 256},
			"district": {"type": "string", "maxLength": 64},
			"state": {"type": "string", "maxLength": 64},
			"sect": {"type": "string", "maxLength": 64},
			"tags": {"type": "array", "items": {"type": "string", "maxLength": 48}},
			"virtualTourAvailable": {"type": "boolean"},
			"audioGuideAvailable": {"type": "boolean"}
		}
	}`
	if err := v.loadSchema(KindMonastery, monasterySchema); err != nil {
		return fmt.Errorf("failed to load monastery schema: %w", err)
	}

	guideSchema := `{
		"type": "object",
		"required": ["title", "audioUrl"],
		"properties": {
			"monasteryId": {"type": "string"},
			"title": {"type": "string", "minLength": 2, "maxLength": 128},
			"description": {"type": "string", "maxLength": 4096},
			"transcript": {"type": "string"},
			"audioUrl": {"type": "string", "minLength": 1},
			"duration": {"type": "integer", "minimum": 0},
			"language": {"type": "string", "minLength": 2, "maxLength": 8},
			"category": {"enum": ["general", "history", "architecture", "spiritual", "location-based"]},
			"location": {
				"type": "object",
				"required": ["coordinates"],
				"properties": {
					"coordinates": {
						"type": "array",
						"minItems": 2,
						"maxItems": 2,
						"items": [
							{"type": "number", "minimum": -180, "maximum": 180},
							{"type": "number", "minimum": -90, "maximum": 90}
						]
					}
				}
			},
			"triggerRadius": {"type": "number", "minimum": 0},
			"tags": {"type": "array", "items": {"type": "string", "maxLength": 48}}
		}
	}`
	if err := v.loadSchema(KindAudioGuide, guideSchema); err != nil {
		return fmt.Errorf("failed to load audio guide schema: %w", err)
	}

	return nil
}

// loadSchema compiles a single schema.
func (v *Validator) loadSchema(kind, schemaJSON string) error {
	loader := gojsonschema.NewStringLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", kind, err)
	}
	v.schemas[kind] = schema
	return nil
}

// Validate validates a payload against the schema for its kind.
// Returns nil if valid, an error with joined details otherwise.
func (v *Validator) Validate(kind string, payload map[string]interface{}) error {
	if !SupportedKinds[kind] {
		return fmt.Errorf("unsupported payload kind: %s", kind)
	}
	schema, exists := v.schemas[kind]
	if !exists {
		return fmt.Errorf("schema not found for kind: %s", kind)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payloadJSON))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
