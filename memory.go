package kindred

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Per-day decay rates for each memory type.
const (
	ConversationDecayRate = 0.01
	EmotionDecayRate      = 0.005
	MilestoneDecayRate    = 0.001
	TraumaDecayRate       = 0.0

	milestoneWeight   = 0.9
	traumaWeight      = 1.0
	maxSummaryLength  = 200
	secondsPerDay     = 86400.0
	maxMessageBonus   = 0.3
	perMessageBonus   = 0.05
	defaultMessageCnt = 1
)

// NewConversationMemory records an exchange. Longer exchanges weigh more.
//
//	weight = min(1, intensity/100 + min(messageCount×0.05, 0.3))
func NewConversationMemory(companionID string, author Author, content string, intensity, messageCount int, now time.Time) Memory {
	if messageCount <= 0 {
		messageCount = defaultMessageCnt
	}
	bonus := math.Min(float64(messageCount)*perMessageBonus, maxMessageBonus)
	return newMemory(companionID, MemoryConversation, author, content,
		math.Min(1.0, float64(intensity)/100+bonus), ConversationDecayRate, now)
}

// NewEmotionMemory records a feeling at the given intensity.
func NewEmotionMemory(companionID, content string, intensity int, now time.Time) Memory {
	return newMemory(companionID, MemoryEmotion, AuthorSystem, content,
		float64(intensity)/100, EmotionDecayRate, now)
}

// NewMilestoneMemory records a relationship milestone. Near-permanent.
func NewMilestoneMemory(companionID, content string, now time.Time) Memory {
	return newMemory(companionID, MemoryMilestone, AuthorSystem, content,
		milestoneWeight, MilestoneDecayRate, now)
}

// NewTraumaMemory records a wound. Trauma never decays.
func NewTraumaMemory(companionID, content string, now time.Time) Memory {
	return newMemory(companionID, MemoryTrauma, AuthorSystem, content,
		traumaWeight, TraumaDecayRate, now)
}

func newMemory(companionID string, typ MemoryType, author Author, content string, weight, rate float64, now time.Time) Memory {
	return Memory{
		CompanionID:     companionID,
		Type:            typ,
		Author:          author,
		Content:         truncateSummary(strings.TrimSpace(content), maxSummaryLength),
		EmotionalWeight: math.Max(0, math.Min(1, weight)),
		DecayRate:       rate,
		CreatedAt:       now,
		LastAccessedAt:  now,
	}
}

// --- Decay ---

// DecayedWeight returns the weight after elapsed time without access.
//
//	weight' = max(0, weight − decayRate × seconds/86400)
func DecayedWeight(weight, decayRate float64, elapsed time.Duration) float64 {
	if decayRate == 0 || elapsed <= 0 {
		return weight
	}
	return math.Max(0, weight-decayRate*(elapsed.Seconds()/secondsPerDay))
}

// --- Context formatting ---

// FormatMemoryContext renders the strongest memories for a response
// generator, one per line:
//
//	[MILESTONE, 3 days ago] first conversation
//
// At most limit memories are rendered regardless of how many are passed.
func FormatMemoryContext(memories []Memory, now time.Time, limit int) string {
	if len(memories) == 0 {
		return ""
	}
	sorted := make([]Memory, len(memories))
	copy(sorted, memories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EmotionalWeight > sorted[j].EmotionalWeight
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	var b strings.Builder
	for i, m := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s, %s] %s", strings.ToUpper(string(m.Type)), memoryAge(m.CreatedAt, now), m.Content)
	}
	return b.String()
}

func memoryAge(created, now time.Time) string {
	days := int(now.Sub(created).Hours() / 24)
	switch {
	case days < 1:
		return "today"
	case days == 1:
		return "1 day ago"
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}

// truncateSummary returns at most n bytes of s, breaking at a word boundary,
// or at a rune boundary when there is no space to break at.
func truncateSummary(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && s[cut] != ' ' {
		cut--
	}
	if cut == 0 {
		cut = n
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
	}
	return s[:cut] + "..."
}
