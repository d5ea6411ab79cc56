package main

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/goblincore/kindred"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T) *kindred.Engine {
	t.Helper()
	e, err := kindred.Init(kindred.Config{
		DBPath:        filepath.Join(t.TempDir(), "kindred.db"),
		DecayInterval: -1,
		Logger:        log.New(io.Discard),
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

func TestToolRoundTrip(t *testing.T) {
	engine := testEngine(t)
	ctx := context.Background()

	res, _, err := createCompanionHandler(engine)(ctx, nil, createCompanionInput{Name: "Mira"})
	require.NoError(t, err)
	companion := decodeResult(t, res)
	id, _ := companion["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "nascent", companion["state"])

	res, _, err = processInteractionHandler(engine)(ctx, nil, processInteractionInput{
		CompanionID: id, Kind: "message", Content: "hi",
	})
	require.NoError(t, err)
	processed := decodeResult(t, res)
	assert.Equal(t, "curious", processed["new_state"])
	assert.Equal(t, true, processed["state_changed"])
	memory, ok := processed["memory"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "milestone", memory["type"])

	res, _, err = memoryContextHandler(engine)(ctx, nil, companionInput{CompanionID: id})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "first conversation")

	res, _, err = getProfileHandler(engine)(ctx, nil, companionInput{CompanionID: id})
	require.NoError(t, err)
	profile := decodeResult(t, res)
	assert.Equal(t, "Mira", profile["name"])
	assert.Equal(t, "curious", profile["state"])

	res, _, err = decaySweepHandler(engine)(ctx, nil, decaySweepInput{})
	require.NoError(t, err)
	sweep := decodeResult(t, res)
	assert.Equal(t, float64(0), sweep["deleted"])
}

func TestToolRespondWithoutGenerator(t *testing.T) {
	engine := testEngine(t)
	ctx := context.Background()

	c, err := engine.CreateCompanion(ctx, "Mira")
	require.NoError(t, err)

	res, _, err := respondHandler(engine)(ctx, nil, respondInput{
		CompanionID: c.ID,
		Message:     "hello",
		History:     []turnInput{{Role: "user", Content: "are you there?"}},
	})
	require.NoError(t, err)
	out := decodeResult(t, res)
	reply, ok := out["reply"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, reply["fallback"])
	assert.NotEmpty(t, reply["text"])

	res, _, err = recallHandler(engine)(ctx, nil, recallInput{CompanionID: c.ID, Limit: 5})
	require.NoError(t, err)
	var memories []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &memories))
	assert.NotEmpty(t, memories)
}

func TestToolErrorsAreText(t *testing.T) {
	engine := testEngine(t)
	ctx := context.Background()

	res, _, err := processInteractionHandler(engine)(ctx, nil, processInteractionInput{CompanionID: "ghost", Kind: "message"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resultText(t, res), "error:"))

	res, _, err = processInteractionHandler(engine)(ctx, nil, processInteractionInput{CompanionID: "ghost", Kind: "message", OccurredAt: "yesterday"})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "occurred_at")

	res, _, err = memoryContextHandler(engine)(ctx, nil, companionInput{CompanionID: "ghost"})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "companion not found")
}
