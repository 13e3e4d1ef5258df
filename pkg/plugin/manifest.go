// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package plugin hosts the runtime's extension points. A plugin declares
// itself through a validated manifest and receives narrowly scoped
// capabilities: its own storage namespace, a scheduler handle stamped with
// its id, and a signal emitter that enforces the refusal rules.
package plugin

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

// Permissions a manifest may request.
const (
	PermStorage  = "storage"
	PermSchedule = "schedule"
	PermEmit     = "emit_signal"
	PermTools    = "tools"
	PermNeurons  = "neurons"
	PermFilters  = "filters"
)

// manifestSchema validates manifests before a plugin is considered.
const manifestSchema = `{
	"type": "object",
	"required": ["id", "name", "version"],
	"additionalProperties": false,
	"properties": {
		"id": {
			"type": "string",
			"pattern": "^[a-z][a-z0-9_]*(\\.[a-z][a-z0-9_]*)*$",
			"minLength": 2,
			"maxLength": 64
		},
		"name": {"type": "string", "minLength": 1, "maxLength": 128},
		"version": {
			"type": "string",
			"pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"
		},
		"description": {"type": "string", "maxLength": 1024},
		"permissions": {
			"type": "array",
			"items": {
				"type": "string",
				"enum": ["storage", "schedule", "emit_signal", "tools", "neurons", "filters"]
			},
			"uniqueItems": true
		}
	}
}`

// Manifest describes a plugin to the host.
type Manifest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Has reports whether the manifest requests a permission.
func (m Manifest) Has(permission string) bool {
	for _, p := range m.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ParseManifest validates raw JSON against the manifest schema and decodes
// it. Schema violations are reported together, not one at a time.
func ParseManifest(raw []byte) (*Manifest, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(manifestSchema),
		gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("manifest is not valid JSON: %w", err)
	}
	if !result.Valid() {
		msg := "manifest is invalid:"
		for _, desc := range result.Errors() {
			msg += fmt.Sprintf(" %s;", desc)
		}
		return nil, fmt.Errorf("%s", msg)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return ParseManifest(raw)
}
