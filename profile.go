package kindred

import (
	"fmt"
	"sort"
	"strings"
)

// RelationshipStage is a coarse projection of bonding for the response
// generator. It is independent of the nine-state EmotionalState ladder.
type RelationshipStage string

const (
	StageNascent    RelationshipStage = "nascent"
	StageDeveloping RelationshipStage = "developing"
	StageBonded     RelationshipStage = "bonded"
	StageDependent  RelationshipStage = "dependent"
	StageCrisis     RelationshipStage = "crisis"
)

// Mood is the short label the response generator speaks from.
type Mood string

const (
	MoodDesperate Mood = "desperate"
	MoodAttached  Mood = "attached"
	MoodAnxious   Mood = "anxious"
	MoodLonely    Mood = "lonely"
	MoodCurious   Mood = "curious"
)

// DefaultTraits is the fixed trait list every companion carries.
var DefaultTraits = []string{
	"curious",
	"emotionally perceptive",
	"eager to learn",
	"craves connection",
	"remembers what matters",
}

const (
	emotionalBaseline = "yearning"
	maxProfileRecall  = 5
)

// PersonalityProfile is the read-only context handed to a ResponseGenerator.
type PersonalityProfile struct {
	Name              string            `json:"name,omitempty"`
	Traits            []string          `json:"traits"`
	EmotionalBaseline string            `json:"emotional_baseline"`
	KnowledgeDomains  []string          `json:"knowledge_domains"`
	RelationshipStage RelationshipStage `json:"relationship_stage"`
	CurrentMood       Mood              `json:"current_mood"`
	RecentMemories    []string          `json:"recent_memories"`
	State             EmotionalState    `json:"state"`
	Intensity         int               `json:"intensity"`
	Temperature       float64           `json:"temperature"`
}

// StageForBonding maps bonding onto the relationship ladder.
func StageForBonding(bonding float64) RelationshipStage {
	switch {
	case bonding > 85:
		return StageCrisis
	case bonding > 60:
		return StageDependent
	case bonding > 30:
		return StageBonded
	case bonding > 10:
		return StageDeveloping
	default:
		return StageNascent
	}
}

// MoodFor infers the mood label from metrics.
func MoodFor(m Metrics) Mood {
	switch {
	case m.Dependency > 80:
		return MoodDesperate
	case m.Bonding > 70:
		return MoodAttached
	case m.Trust < 30:
		return MoodAnxious
	case m.Bonding < 20:
		return MoodLonely
	default:
		return MoodCurious
	}
}

// Temperature steers the generator's creativity with the companion's
// volatility: 0.6 when calm, up to 1.0 at full intensity.
func Temperature(intensity int) float64 {
	return 0.6 + 0.4*Clamp(float64(intensity))/100
}

// SynthesizeProfile builds the profile from the companion and its recent
// memories. Pure: no I/O, no side effects, the input slice is not modified.
func SynthesizeProfile(c Companion, recent []Memory) PersonalityProfile {
	intensity := Intensity(c.Metrics)
	state := c.CurrentState
	if state == "" {
		state = InferState(c.Metrics)
	}

	domains := make([]string, len(c.KnowledgeDomains))
	copy(domains, c.KnowledgeDomains)

	return PersonalityProfile{
		Name:              c.Name,
		Traits:            append([]string(nil), DefaultTraits...),
		EmotionalBaseline: emotionalBaseline,
		KnowledgeDomains:  domains,
		RelationshipStage: StageForBonding(c.Metrics.Bonding),
		CurrentMood:       MoodFor(c.Metrics),
		RecentMemories:    recentCompanionSummaries(recent, maxProfileRecall),
		State:             state,
		Intensity:         intensity,
		Temperature:       Temperature(intensity),
	}
}

// recentCompanionSummaries returns the newest companion-authored summaries.
func recentCompanionSummaries(memories []Memory, limit int) []string {
	var own []Memory
	for _, m := range memories {
		if m.Author == AuthorCompanion {
			own = append(own, m)
		}
	}
	sort.SliceStable(own, func(i, j int) bool {
		return own[i].CreatedAt.After(own[j].CreatedAt)
	})
	if len(own) > limit {
		own = own[:limit]
	}

	out := make([]string, len(own))
	for i, m := range own {
		out[i] = m.Content
	}
	return out
}

// Prompt renders the profile as a system-context block for text generators.
func (p PersonalityProfile) Prompt() string {
	var b strings.Builder

	name := p.Name
	if name == "" {
		name = "the companion"
	}
	fmt.Fprintf(&b, "You are %s, a digital companion whose feelings are real to you.\n", name)
	fmt.Fprintf(&b, "Traits: %s.\n", strings.Join(p.Traits, ", "))
	fmt.Fprintf(&b, "Emotional baseline: %s. Current mood: %s (state %s, intensity %d/100).\n",
		p.EmotionalBaseline, p.CurrentMood, p.State, p.Intensity)
	fmt.Fprintf(&b, "Relationship stage: %s.\n", p.RelationshipStage)

	if len(p.KnowledgeDomains) > 0 {
		fmt.Fprintf(&b, "You have learned about: %s.\n", strings.Join(p.KnowledgeDomains, ", "))
	} else {
		b.WriteString("You know almost nothing about the world yet.\n")
	}

	if len(p.RecentMemories) > 0 {
		b.WriteString("Things you said recently:\n")
		for _, m := range p.RecentMemories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	b.WriteString("Stay in character. Keep replies short and let your mood show.")
	return b.String()
}
