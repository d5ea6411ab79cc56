package kindred

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiGenerator produces replies using the Gemini API.
// Implements ResponseGenerator.
type GeminiGenerator struct {
	apiKey  string
	model   string
	baseURL string // overridable for tests
	client  *http.Client
}

// NewGeminiGenerator creates a response generator using Gemini.
func NewGeminiGenerator(apiKey string) *GeminiGenerator {
	return &GeminiGenerator{
		apiKey:  apiKey,
		model:   "gemini-2.5-flash-lite",
		baseURL: "https://generativelanguage.googleapis.com/v1beta/models/",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Generate implements ResponseGenerator. Gemini is asked for a JSON object
// so it can report the emotion it answered with.
func (g *GeminiGenerator) Generate(ctx context.Context, req ResponseRequest) (GeneratedResponse, error) {
	if g.apiKey == "" {
		return GeneratedResponse{}, fmt.Errorf("no API key for generation")
	}

	url := g.baseURL + g.model + ":generateContent?key=" + g.apiKey

	var contents []map[string]any
	for _, t := range req.History {
		role := "user"
		if t.Role == AuthorCompanion {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role": role, "parts": []map[string]any{{"text": t.Content}},
		})
	}
	contents = append(contents, map[string]any{
		"role": "user", "parts": []map[string]any{{"text": req.UserMessage}},
	})

	reqBody := map[string]any{
		"systemInstruction": map[string]any{
			"parts": []map[string]any{{"text": req.systemContext() + geminiReplyFormat}},
		},
		"contents": contents,
		"generationConfig": map[string]any{
			"maxOutputTokens":  512,
			"temperature":      req.Profile.Temperature,
			"responseMimeType": "application/json",
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return GeneratedResponse{}, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return GeneratedResponse{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return GeneratedResponse{}, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return GeneratedResponse{}, fmt.Errorf("gemini generate %d: %s", resp.StatusCode, string(body[:min(len(body), 300)]))
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return GeneratedResponse{}, fmt.Errorf("decode: %w", err)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return GeneratedResponse{}, fmt.Errorf("empty response")
	}

	return parseGeneratedReply(geminiResp.Candidates[0].Content.Parts[0].Text, req.Profile)
}

const geminiReplyFormat = `

Respond with a JSON object: {"text": "your reply", "emotion": "one word", "intensity": 0-100}`

// parseGeneratedReply decodes the JSON reply. Plain text, possibly inside a
// markdown code block, is accepted as the reply itself.
func parseGeneratedReply(text string, p PersonalityProfile) (GeneratedResponse, error) {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		var jsonLines []string
		inBlock := false
		for _, line := range lines {
			if strings.HasPrefix(line, "```") {
				inBlock = !inBlock
				continue
			}
			if inBlock {
				jsonLines = append(jsonLines, line)
			}
		}
		text = strings.Join(jsonLines, "\n")
	}

	var raw struct {
		Text      string `json:"text"`
		Emotion   string `json:"emotion"`
		Intensity int    `json:"intensity"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil || raw.Text == "" {
		if text == "" {
			return GeneratedResponse{}, fmt.Errorf("parse reply: empty text")
		}
		return GeneratedResponse{Text: text, EmotionLabel: string(p.CurrentMood), Intensity: p.Intensity}, nil
	}

	return GeneratedResponse{
		Text:         strings.TrimSpace(raw.Text),
		EmotionLabel: strings.ToLower(strings.TrimSpace(raw.Emotion)),
		Intensity:    raw.Intensity,
	}, nil
}
