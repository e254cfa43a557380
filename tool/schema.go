// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tool

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a Go struct (tagged with `json` and optionally
// `jsonschema`) into an OpenAI-function-calling-compatible parameters blob:
// {type:"object", properties, required}. Struct-backed tools (SpawnAgentTool,
// the generated delegate tools) use this instead of hand-writing schema maps.
func SchemaFor(v any) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)

	// Round-trip through encoding/json to get a plain map[string]any that
	// matches the shape LLM providers expect, dropping the $schema/$id
	// metadata fields that jsonschema.Schema otherwise emits.
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}

	delete(out, "$schema")
	delete(out, "$id")
	if out["type"] == nil {
		out["type"] = "object"
	}
	return out
}
