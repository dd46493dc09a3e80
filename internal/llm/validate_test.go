package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return &Schema{
		Name:        "test-object",
		Description: "A test object",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":  map[string]any{"type": "string"},
				"age":   map[string]any{"type": "integer", "minimum": 0},
				"grade": map[string]any{"type": "string", "enum": []any{"A", "B", "C"}},
			},
			"required": []string{"name", "age"},
		},
	}
}

func TestValidateResponse(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid object", raw: `{"name":"Alice","age":10,"grade":"A"}`},
		{name: "optional field omitted", raw: `{"name":"Bob","age":8}`},
		{name: "fenced JSON", raw: "```json\n{\"name\":\"Dee\",\"age\":3}\n```"},
		{name: "missing required field", raw: `{"name":"Charlie"}`, wantErr: true},
		{name: "wrong type", raw: `{"name":"Eve","age":"ten"}`, wantErr: true},
		{name: "enum violation", raw: `{"name":"Fay","age":9,"grade":"Z"}`, wantErr: true},
		{name: "not JSON", raw: `the answer is B`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateResponse(testSchema(), json.RawMessage(tc.raw))
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			var invErr *ErrInvalidResponse
			assert.ErrorAs(t, err, &invErr)
		})
	}
}

func TestValidateResponse_NilSchema(t *testing.T) {
	assert.NoError(t, validateResponse(nil, json.RawMessage(`not json`)))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(stripCodeFence(json.RawMessage("```json\n{\"a\":1}\n```"))))
	assert.Equal(t, `{"a":1}`, string(stripCodeFence(json.RawMessage("```\n{\"a\":1}```"))))
	assert.Equal(t, ` {"a":1} `, string(stripCodeFence(json.RawMessage(` {"a":1} `))))
}

func TestGenerateObject(t *testing.T) {
	mock := NewMockProvider(JSONResponse(map[string]any{"name": "Ada", "age": 36}))

	obj, err := GenerateObject(t.Context(), mock, UserPrompt("describe", testSchema(), 100))

	require.NoError(t, err)
	assert.Equal(t, "Ada", obj["name"])
	assert.Equal(t, float64(36), obj["age"])

	call, ok := mock.LastCall()
	require.True(t, ok)
	require.Len(t, call.Messages, 1)
	assert.Equal(t, RoleUser, call.Messages[0].Role)
	assert.Equal(t, "describe", call.Messages[0].Content)
}

func TestGenerateObject_SchemaViolation(t *testing.T) {
	mock := NewMockProvider(JSONResponse(map[string]any{"name": "Ada"}))

	_, err := GenerateObject(t.Context(), mock, UserPrompt("describe", testSchema(), 100))

	var invErr *ErrInvalidResponse
	assert.ErrorAs(t, err, &invErr)
}

func TestBuildGeminiSchema(t *testing.T) {
	s := buildGeminiSchema(testSchema().Definition)

	require.NotNil(t, s.Properties["grade"])
	assert.Equal(t, []string{"name", "age"}, s.Required)
	assert.Equal(t, []string{"A", "B", "C"}, s.Properties["grade"].Enum)
	assert.Equal(t, "INTEGER", string(s.Properties["age"].Type))
}
