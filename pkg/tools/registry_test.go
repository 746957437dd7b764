package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return NewFuncTool(ToolDefinition{
		Name:        name,
		Description: "echo " + name,
		Parameters: JSONSchema{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		},
	}, func(_ context.Context, args string) (string, error) {
		return name + ":" + args, nil
	})
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("b")))
	require.NoError(t, r.Register(echoTool("a")))

	assert.True(t, r.Has("a"))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a", "b"}, r.Names())

	tool, err := r.Get("a")
	require.NoError(t, err)
	out, err := tool.Execute(context.Background(), `{"text":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, `a:{"text":"x"}`, out)
}

func TestRegistry_ReplaceOnDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("a")))

	replacement := NewFuncTool(ToolDefinition{Name: "a", Description: "new"}, func(context.Context, string) (string, error) {
		return "new", nil
	})
	require.NoError(t, r.Register(replacement))

	assert.Equal(t, 1, r.Len())
	tool, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "new", tool.Definition().Description)
}

func TestRegistry_EmptyName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(echoTool("  "))
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Error(t, r.Register(nil))
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))

	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, te.Kind)
	assert.Equal(t, "missing", te.Tool)
}

func TestRegistry_RegisterAs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAs("shout", echoTool("echo")))

	assert.False(t, r.Has("echo"))
	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "shout", defs[0].Name)
	assert.Equal(t, "echo echo", defs[0].Description)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("a")))
	assert.True(t, r.Unregister("a"))
	assert.False(t, r.Unregister("a"))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_DefinitionsAreCopies(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("a")))

	defs := r.Definitions()
	defs[0].Parameters["type"] = "array"
	props := defs[0].Parameters["properties"].(map[string]any)
	delete(props, "text")

	again := r.Definitions()
	assert.Equal(t, "object", again[0].Parameters["type"])
	assert.Contains(t, again[0].Parameters["properties"], "text")
}

func TestTypedTool(t *testing.T) {
	type args struct {
		City string `json:"city"`
	}
	tool := NewTypedTool(ToolDefinition{Name: "weather"}, func(_ context.Context, a args) (string, error) {
		return "sunny in " + a.City, nil
	})

	out, err := tool.Execute(context.Background(), "```json\n{\"city\":\"Beijing\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "sunny in Beijing", out)

	_, err = tool.Execute(context.Background(), `{"city": 1}`)
	assert.Error(t, err)
}
