package workflow

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compileSchema compiles the embedded workflow schema. The schema is part of
// the build, so a compile failure is a programmer error.
func compileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("workflow.json", strings.NewReader(workflowSchemaJSON)); err != nil {
		panic("workflow: add schema resource: " + err.Error())
	}

	schema, err := compiler.Compile("workflow.json")
	if err != nil {
		panic("workflow: compile schema: " + err.Error())
	}
	return schema
}

var workflowSchema = compileSchema()

// Embedded JSON schema for the structural validation pass. Per-type
// mandatory fields (prompt_file, command, policy) are deliberately absent
// here: "required field depends on a sibling discriminator" is enforced by
// the semantic pass, which can name the step id in its message.

const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "workflow.json",
  "title": "Agent Workflow",
  "type": "object",
  "required": ["schema_version", "name", "model", "steps"],
  "additionalProperties": false,
  "properties": {
    "schema_version": {
      "type": "integer",
      "enum": [1],
      "description": "Workflow schema version"
    },
    "name": {
      "type": "string",
      "minLength": 1,
      "description": "Display name"
    },
    "model": {
      "type": "string",
      "minLength": 1,
      "description": "Model reference, may contain a ${VAR} placeholder"
    },
    "guardrails": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "description": "Guardrail identifiers"
    },
    "env": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_runtime_seconds": {"type": "integer", "minimum": 1},
        "artifacts_dir": {"type": "string", "minLength": 1}
      }
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/step"}
    }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "type"],
      "additionalProperties": false,
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1,
          "description": "Step identifier, unique within the workflow"
        },
        "type": {
          "enum": ["prompt", "cmd", "agent", "apply_diff"]
        },
        "prompt_file": {"type": "string"},
        "available_tools": {
          "type": "array",
          "items": {"type": "string", "minLength": 1}
        },
        "input_filter": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "path_globs": {
              "type": "array",
              "items": {"type": "string", "minLength": 1}
            },
            "max_file_size_kb": {"type": "integer", "minimum": 1}
          }
        },
        "command": {"type": "string"},
        "on_error": {"enum": ["continue", "fail"]},
        "policy": {"$ref": "#/$defs/policy"},
        "approve": {"type": "boolean"}
      }
    },
    "policy": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "timeout_seconds": {"type": "integer"},
        "max_files": {"type": "integer"},
        "max_edits": {"type": "integer"},
        "allowed_paths": {
          "type": "array",
          "items": {"type": "string", "minLength": 1}
        },
        "cmd_allowlist": {
          "type": "array",
          "items": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`
