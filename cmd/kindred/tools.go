package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goblincore/kindred"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerTools(server *mcp.Server, engine *kindred.Engine) {
	// --- Tool: create_companion ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_companion",
		Description: "Create a new nascent companion. Returns its ID.",
	}, createCompanionHandler(engine))

	// --- Tool: process_interaction ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "process_interaction",
		Description: "Feed one event (message, knowledge_gained, ignored, praised, criticized) to a companion. Returns the new profile, state change and metric deltas.",
	}, processInteractionHandler(engine))

	// --- Tool: respond ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "respond",
		Description: "Process a user message and produce the companion's reply. Falls back to a canned reply if no generator is reachable.",
	}, respondHandler(engine))

	// --- Tool: recall ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall",
		Description: "Retrieve a companion's strong memories, most recently accessed first. Retrieval reinforces them.",
	}, recallHandler(engine))

	// --- Tool: memory_context ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_context",
		Description: "Render the companion's strongest memories as generator context. Read-only.",
	}, memoryContextHandler(engine))

	// --- Tool: get_profile ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_profile",
		Description: "Synthesize the companion's current personality profile. Read-only.",
	}, getProfileHandler(engine))

	// --- Tool: decay_sweep ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "decay_sweep",
		Description: "Decay memories and delete the ones that faded. Sweeps every companion when no ID is given.",
	}, decaySweepHandler(engine))
}

// --- Input types ---

type createCompanionInput struct {
	Name string `json:"name,omitempty" jsonschema:"Display name for the companion"`
}

type processInteractionInput struct {
	CompanionID  string  `json:"companion_id"            jsonschema:"Companion ID"`
	Kind         string  `json:"kind"                    jsonschema:"Event kind: message, knowledge_gained, ignored, praised, criticized"`
	Content      string  `json:"content,omitempty"       jsonschema:"Message text, or the domain name for knowledge_gained"`
	IdleMinutes  float64 `json:"idle_minutes,omitempty"  jsonschema:"Minutes the companion was ignored (required for ignored events)"`
	MessageCount int     `json:"message_count,omitempty" jsonschema:"Messages in the current exchange (default 1)"`
	OccurredAt   string  `json:"occurred_at,omitempty"   jsonschema:"RFC3339 event time (default now)"`
}

type turnInput struct {
	Role    string `json:"role"    jsonschema:"user or companion"`
	Content string `json:"content" jsonschema:"What was said"`
}

type respondInput struct {
	CompanionID string      `json:"companion_id"      jsonschema:"Companion ID"`
	Message     string      `json:"message"           jsonschema:"What the user said"`
	History     []turnInput `json:"history,omitempty" jsonschema:"Earlier turns of this conversation, oldest first"`
}

type recallInput struct {
	CompanionID string `json:"companion_id"    jsonschema:"Companion ID"`
	Query       string `json:"query,omitempty" jsonschema:"What the memories should relate to"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Max memories to return (default 10)"`
}

type companionInput struct {
	CompanionID string `json:"companion_id" jsonschema:"Companion ID"`
}

type decaySweepInput struct {
	CompanionID string `json:"companion_id,omitempty" jsonschema:"Companion ID; omit to sweep all companions"`
}

// --- Handlers ---

func createCompanionHandler(engine *kindred.Engine) func(context.Context, *mcp.CallToolRequest, createCompanionInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input createCompanionInput) (*mcp.CallToolResult, any, error) {
		c, err := engine.CreateCompanion(ctx, input.Name)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(companionToMap(c))), nil, nil
	}
}

func processInteractionHandler(engine *kindred.Engine) func(context.Context, *mcp.CallToolRequest, processInteractionInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input processInteractionInput) (*mcp.CallToolResult, any, error) {
		ev := kindred.InteractionEvent{
			Kind:         kindred.EventKind(input.Kind),
			Content:      input.Content,
			IdleDuration: input.IdleMinutes,
			MessageCount: input.MessageCount,
		}
		if input.OccurredAt != "" {
			t, err := time.Parse(time.RFC3339, input.OccurredAt)
			if err != nil {
				return textResult(fmt.Sprintf("invalid 'occurred_at' timestamp: %v", err)), nil, nil
			}
			ev.OccurredAt = t
		}

		res, err := engine.ProcessInteraction(ctx, input.CompanionID, ev)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(processResultToMap(res))), nil, nil
	}
}

func respondHandler(engine *kindred.Engine) func(context.Context, *mcp.CallToolRequest, respondInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input respondInput) (*mcp.CallToolResult, any, error) {
		history := make([]kindred.Turn, len(input.History))
		for i, t := range input.History {
			history[i] = kindred.Turn{Role: kindred.Author(t.Role), Content: t.Content}
		}

		res, err := engine.Respond(ctx, input.CompanionID, input.Message, history)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		out := processResultToMap(res.Interaction)
		out["reply"] = res.Reply
		return textResult(jsonString(out)), nil, nil
	}
}

func recallHandler(engine *kindred.Engine) func(context.Context, *mcp.CallToolRequest, recallInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input recallInput) (*mcp.CallToolResult, any, error) {
		memories, err := engine.Recall(ctx, input.CompanionID, input.Query, input.Limit)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		out := make([]map[string]any, len(memories))
		for i, m := range memories {
			out[i] = memoryToMap(m)
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func memoryContextHandler(engine *kindred.Engine) func(context.Context, *mcp.CallToolRequest, companionInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input companionInput) (*mcp.CallToolResult, any, error) {
		text, err := engine.MemoryContext(ctx, input.CompanionID)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		if text == "" {
			text = "(no memories)"
		}
		return textResult(text), nil, nil
	}
}

func getProfileHandler(engine *kindred.Engine) func(context.Context, *mcp.CallToolRequest, companionInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input companionInput) (*mcp.CallToolResult, any, error) {
		p, err := engine.Profile(ctx, input.CompanionID)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(p)), nil, nil
	}
}

func decaySweepHandler(engine *kindred.Engine) func(context.Context, *mcp.CallToolRequest, decaySweepInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input decaySweepInput) (*mcp.CallToolResult, any, error) {
		var res kindred.SweepResult
		var err error
		if input.CompanionID != "" {
			res, err = engine.RunDecaySweep(ctx, input.CompanionID)
		} else {
			res, err = engine.SweepAll(ctx)
		}
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		return textResult(jsonString(map[string]any{
			"updated": res.Updated,
			"deleted": res.Deleted,
		})), nil, nil
	}
}

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func companionToMap(c kindred.Companion) map[string]any {
	return map[string]any{
		"id":                  c.ID,
		"name":                c.Name,
		"bonding":             c.Metrics.Bonding,
		"trust":               c.Metrics.Trust,
		"dependency":          c.Metrics.Dependency,
		"intensity":           c.EmotionalIntensity,
		"state":               c.CurrentState,
		"knowledge_domains":   c.KnowledgeDomains,
		"interaction_count":   c.InteractionCount,
		"created_at":          c.CreatedAt.Format(time.RFC3339),
		"last_interaction_at": c.LastInteractionAt.Format(time.RFC3339),
	}
}

func memoryToMap(m kindred.Memory) map[string]any {
	return map[string]any{
		"id":                  m.ID,
		"type":                m.Type,
		"author":              m.Author,
		"content":             m.Content,
		"emotional_weight":    m.EmotionalWeight,
		"decay_rate":          m.DecayRate,
		"reinforcement_count": m.ReinforcementCount,
		"created_at":          m.CreatedAt.Format(time.RFC3339),
		"last_accessed_at":    m.LastAccessedAt.Format(time.RFC3339),
	}
}

func processResultToMap(r kindred.ProcessResult) map[string]any {
	out := map[string]any{
		"profile":        r.Profile,
		"state_changed":  r.StateChanged,
		"previous_state": r.PreviousState,
		"new_state":      r.NewState,
		"trigger":        r.Trigger,
		"metric_deltas":  r.MetricDeltas,
	}
	if r.Memory != nil {
		out["memory"] = memoryToMap(*r.Memory)
	}
	return out
}

func jsonString(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal: %v"}`, err)
	}
	return string(data)
}
