package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateArguments(t *testing.T) {
	schema := JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"city":  map[string]any{"type": "string"},
			"days":  map[string]any{"type": "integer"},
			"units": map[string]any{"type": "string", "enum": []any{"metric", "imperial"}},
			"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"extra": map[string]any{"type": []any{"object", "null"}},
		},
		"required":             []any{"city"},
		"additionalProperties": false,
	}

	tests := []struct {
		name    string
		args    string
		wantErr string
	}{
		{name: "valid minimal", args: `{"city":"Beijing"}`},
		{name: "valid full", args: `{"city":"Beijing","days":3,"units":"metric","tags":["a"],"extra":null}`},
		{name: "markdown fenced", args: "```json\n{\"city\":\"Paris\"}\n```"},
		{name: "missing required", args: `{}`, wantErr: `missing properties: ["city"]`},
		{name: "empty means empty object", args: ``, wantErr: `missing properties: ["city"]`},
		{name: "wrong type", args: `{"city":42}`, wantErr: `want "string"`},
		{name: "fractional integer", args: `{"city":"x","days":1.5}`, wantErr: `want "integer"`},
		{name: "enum violation", args: `{"city":"x","units":"kelvin"}`, wantErr: "enum:"},
		{name: "array item type", args: `{"city":"x","tags":[1]}`, wantErr: `want "string"`},
		{name: "unknown property", args: `{"city":"x","zip":"1"}`, wantErr: `unexpected additional properties ["zip"]`},
		{name: "not an object", args: `["city"]`, wantErr: "must be a JSON object"},
		{name: "invalid json", args: `{"city":`, wantErr: "not valid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArguments(schema, tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateArguments_EmptySchemaAcceptsAnyObject(t *testing.T) {
	assert.NoError(t, ValidateArguments(nil, `{"anything":true}`))
	assert.NoError(t, ValidateArguments(nil, ""))
	assert.Error(t, ValidateArguments(nil, `"text"`))
}

func TestValidateArguments_NestedObject(t *testing.T) {
	schema := JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{
				"type":       "object",
				"properties": map[string]any{"lat": map[string]any{"type": "number"}},
				"required":   []string{"lat"},
			},
		},
	}
	assert.NoError(t, ValidateArguments(schema, `{"location":{"lat":1.5}}`))
	err := ValidateArguments(schema, `{"location":{}}`)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), `"lat"`)
	}
}

// enum из объектов и массивов сравнивается по значению
func TestValidateArguments_CompositeEnum(t *testing.T) {
	schema := JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"opt":   map[string]any{"type": "object", "enum": []any{map[string]any{"a": 1}}},
			"range": map[string]any{"type": "array", "enum": []any{[]any{1, 2}}},
		},
	}

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"object match", `{"opt":{"a":1}}`, false},
		{"object mismatch", `{"opt":{"a":2}}`, true},
		{"array match", `{"range":[1,2]}`, false},
		{"array mismatch", `{"range":[2,1]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { err = ValidateArguments(schema, tt.args) })
			if tt.wantErr {
				assert.ErrorContains(t, err, "enum:")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResolveSchema(t *testing.T) {
	schema := JSONSchema{"type": "object", "properties": map[string]any{"q": map[string]any{"type": "string"}}}

	first, err := ResolveSchema(schema)
	require.NoError(t, err)
	second, err := ResolveSchema(schema)
	require.NoError(t, err)
	assert.Same(t, first, second, "resolved schema is cached")

	_, err = ResolveSchema(JSONSchema{"type": 42})
	assert.ErrorContains(t, err, "invalid tool schema")
}

func TestFormatArgs(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, FormatArgs("{\"a\":\n  1}", 0))
	assert.Equal(t, `{"город":...`, FormatArgs(`{"город": "Москва"}`, 9))
}
