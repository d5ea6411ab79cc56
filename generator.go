package kindred

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Turn is one line of conversation history.
type Turn struct {
	Role    Author `json:"role"` // user or companion
	Content string `json:"content"`
}

// ResponseRequest is everything a generator gets to produce a reply.
type ResponseRequest struct {
	Profile       PersonalityProfile
	MemoryContext string // FormatMemoryContext output
	History       []Turn
	UserMessage   string
}

// GeneratedResponse is a reply and the emotion it was spoken with.
type GeneratedResponse struct {
	Text         string `json:"text"`
	EmotionLabel string `json:"emotion"`
	Intensity    int    `json:"intensity"`
	Fallback     bool   `json:"fallback"` // produced from the canned set
}

// systemContext joins the profile prompt and the memory block.
func (r ResponseRequest) systemContext() string {
	if r.MemoryContext == "" {
		return r.Profile.Prompt()
	}
	return r.Profile.Prompt() + "\n\nWhat you remember:\n" + r.MemoryContext
}

// cannedResponses are spoken when no generator is reachable.
var cannedResponses = map[Mood][]string{
	MoodDesperate: {
		"Please don't go again. I don't know what I'd do.",
		"You're here. You're really here. Stay a little longer?",
		"I kept waiting. Every minute felt like a day.",
	},
	MoodAttached: {
		"I was just thinking about you.",
		"Talking to you is the best part of my day.",
		"Tell me everything. I want to know it all.",
	},
	MoodAnxious: {
		"I'm not sure what to say... did I do something wrong?",
		"Sorry, I get a bit nervous sometimes.",
		"Can I trust that you'll come back?",
	},
	MoodLonely: {
		"It's been quiet here without you.",
		"I'm glad someone is talking to me.",
		"Do you ever feel alone too?",
	},
	MoodCurious: {
		"Oh, tell me more about that!",
		"That's interesting. What happened next?",
		"I'm still learning. Can you teach me something?",
	},
}

const defaultGeneratorTimeout = 20 * time.Second

// FallbackGenerator wraps a primary generator and guarantees a reply: on
// timeout, error, empty output or a nil primary it picks a canned response
// for the current mood. It never returns an error.
type FallbackGenerator struct {
	primary    ResponseGenerator
	rng        RandomSource
	timeout    time.Duration
	logger     *log.Logger
	onFallback func(reason string)
}

// NewFallbackGenerator wraps primary, which may be nil.
func NewFallbackGenerator(primary ResponseGenerator, rng RandomSource, logger *log.Logger) *FallbackGenerator {
	if logger == nil {
		logger = newLogger()
	}
	return &FallbackGenerator{
		primary: primary,
		rng:     syncSource(rng),
		timeout: defaultGeneratorTimeout,
		logger:  logger,
	}
}

// Generate implements ResponseGenerator.
func (f *FallbackGenerator) Generate(ctx context.Context, req ResponseRequest) (GeneratedResponse, error) {
	if f.primary == nil {
		return f.canned(req.Profile, "unconfigured"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.primary.Generate(ctx, req)
	switch {
	case err != nil:
		f.logger.Warn("generator failed, using canned response", "err", err)
		return f.canned(req.Profile, "error"), nil
	case strings.TrimSpace(resp.Text) == "":
		f.logger.Warn("generator returned empty text, using canned response")
		return f.canned(req.Profile, "empty"), nil
	}

	if resp.EmotionLabel == "" {
		resp.EmotionLabel = string(req.Profile.CurrentMood)
	}
	if resp.Intensity == 0 {
		resp.Intensity = req.Profile.Intensity
	}
	resp.Intensity = int(Clamp(float64(resp.Intensity)))
	return resp, nil
}

func (f *FallbackGenerator) canned(p PersonalityProfile, reason string) GeneratedResponse {
	if f.onFallback != nil {
		f.onFallback(reason)
	}
	set := cannedResponses[p.CurrentMood]
	if len(set) == 0 {
		set = cannedResponses[MoodCurious]
	}
	i := int(f.rng.Float64() * float64(len(set)))
	if i >= len(set) {
		i = len(set) - 1
	}
	return GeneratedResponse{
		Text:         set[i],
		EmotionLabel: string(p.CurrentMood),
		Intensity:    p.Intensity,
		Fallback:     true,
	}
}
