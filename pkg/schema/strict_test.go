package schema

import "testing"

func TestNormalizeStrictSchemaNode_ClosesObjectAndAddsRequired(t *testing.T) {
	node := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":      map[string]any{"type": "string"},
			"recursive": map[string]any{"type": "boolean"},
		},
		"required": []any{"path"},
	}

	out := NormalizeStrictSchemaNode(node).(map[string]any)

	if out["additionalProperties"] != false {
		t.Errorf("expected additionalProperties:false, got %v", out["additionalProperties"])
	}

	required, _ := out["required"].([]any)
	if len(required) != 2 {
		t.Fatalf("expected both properties required, got %v", required)
	}

	props := out["properties"].(map[string]any)
	recursive := props["recursive"].(map[string]any)
	typ, ok := recursive["type"].([]any)
	if !ok || len(typ) != 2 || typ[1] != "null" {
		t.Errorf("expected optional property made nullable, got %v", recursive["type"])
	}
}

func TestNormalizeStrictSchemaNode_RecursesIntoNestedObjects(t *testing.T) {
	node := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filter": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string"},
				},
			},
		},
		"required": []any{"filter"},
	}

	out := NormalizeStrictSchemaNode(node).(map[string]any)
	filter := out["properties"].(map[string]any)["filter"].(map[string]any)
	if filter["additionalProperties"] != false {
		t.Errorf("expected nested object closed, got %v", filter["additionalProperties"])
	}
}

func TestNormalizeStrictSchemaNode_LeavesNonObjectScalarsUntouched(t *testing.T) {
	node := map[string]any{"type": "string"}
	out := NormalizeStrictSchemaNode(node).(map[string]any)
	if _, ok := out["additionalProperties"]; ok {
		t.Errorf("expected no additionalProperties on a non-object schema, got %v", out)
	}
}
