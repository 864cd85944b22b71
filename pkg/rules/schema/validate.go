// Package schema validates raw rule documents against a JSON Schema before
// the typed parser runs, so API and MCP callers get descriptive errors for
// structurally broken payloads.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ruleSchema describes the rule document wire format. Condition and action
// semantics (operator operands, contradictory set/on) are enforced by the
// typed parser; this schema catches shape errors early. The server-set
// timestamps are accepted so a fetched rule can be edited and sent back.
const ruleSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"name": {"type": "string"},
		"description": {"type": "string"},
		"enabled": {"type": "boolean"},
		"createdAt": {"type": "string"},
		"updatedAt": {"type": "string"},
		"scope": {
			"type": "object",
			"properties": {
				"room": {"type": "string"},
				"zone": {"type": "string"},
				"id": {"type": "string"}
			},
			"additionalProperties": false
		},
		"when": {
			"type": "object",
			"additionalProperties": {
				"type": ["null", "number", "object"]
			}
		},
		"actions": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"plugId": {"type": "string", "minLength": 1},
					"set": {"type": "string", "enum": ["on", "off"]},
					"on": {"type": "boolean"}
				},
				"required": ["plugId"],
				"additionalProperties": false
			}
		},
		"guardrails": {
			"type": "object",
			"properties": {
				"minHoldSec": {"type": "integer", "minimum": 0},
				"maxOnPerHour": {"type": "integer", "minimum": 0}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}`

// Validator validates rule documents. The schema is compiled once on first
// use and reused afterwards.
type Validator struct {
	once     sync.Once
	compiled *jsonschema.Schema
	compErr  error
}

// NewValidator creates a rule document validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRule validates a raw rule document.
// Returns nil if the document is structurally valid.
func (v *Validator) ValidateRule(doc json.RawMessage) error {
	v.once.Do(v.compile)
	if v.compErr != nil {
		return fmt.Errorf("rule schema unavailable: %w", v.compErr)
	}

	var payload any
	if err := json.Unmarshal(doc, &payload); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return v.compiled.Validate(payload)
}

func (v *Validator) compile() {
	var schemaMap any
	if err := json.Unmarshal([]byte(ruleSchema), &schemaMap); err != nil {
		v.compErr = fmt.Errorf("unmarshal schema: %w", err)
		return
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("rule.json", schemaMap); err != nil {
		v.compErr = fmt.Errorf("add resource: %w", err)
		return
	}
	compiled, err := c.Compile("rule.json")
	if err != nil {
		v.compErr = fmt.Errorf("compile: %w", err)
		return
	}
	v.compiled = compiled
}
