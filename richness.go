package kindred

import (
	"math"
	"strings"
)

// Richness scores how much a single message gives the companion to hold on to.
type Richness struct {
	Quality   float64 // 0.0 – 1.0, feeds BondingGrowth
	Emotional bool    // carried affect, worth remembering
	Label     string  // detected user emotion: joy, sadness, anger, fear, affection or neutral
}

type weightedSignal struct {
	phrase string
	weight float64
}

// emotionSignals map a label to weighted phrases. Weights are tuned so a
// single weak word does not flip the label on its own.
var emotionSignals = map[string][]weightedSignal{
	"joy": {
		{"happy", 0.3}, {"excited", 0.3}, {"great", 0.2}, {"awesome", 0.3},
		{"glad", 0.3}, {"haha", 0.2}, {"fun", 0.2}, {"love it", 0.3},
	},
	"sadness": {
		{"sad", 0.4}, {"miss", 0.3}, {"lonely", 0.4}, {"cry", 0.4},
		{"disappointed", 0.4}, {"tired", 0.2}, {"sigh", 0.3}, {"hurt", 0.3},
	},
	"anger": {
		{"angry", 0.4}, {"hate", 0.4}, {"annoyed", 0.3}, {"furious", 0.5},
		{"stupid", 0.3}, {"useless", 0.4}, {"shut up", 0.5},
	},
	"fear": {
		{"afraid", 0.4}, {"scared", 0.4}, {"nervous", 0.3}, {"worried", 0.3},
		{"anxious", 0.4}, {"panic", 0.4},
	},
	"affection": {
		{"love you", 0.5}, {"care about", 0.4}, {"thank you", 0.3}, {"thanks", 0.2},
		{"appreciate", 0.3}, {"sweet", 0.2}, {"hug", 0.3}, {"friend", 0.2},
	},
}

// Self-disclosure markers: the user telling the companion about themselves.
var disclosureSignals = []string{
	"i feel", "i think", "i am", "i'm", "my ", "i've", "i was", "i wish",
	"remember when", "today i", "honestly",
}

const (
	emptyMessageQuality = 0.2
	emotionalThreshold  = 0.3
)

// ScoreInteraction rates a message by length, questions, self-disclosure and
// affect. Empty content still counts a little.
func ScoreInteraction(content string) Richness {
	text := strings.TrimSpace(content)
	if text == "" {
		return Richness{Quality: emptyMessageQuality, Label: "neutral"}
	}
	lower := strings.ToLower(text)

	// Length: saturates around 40 words.
	words := len(strings.Fields(text))
	score := 0.3 * math.Min(float64(words)/40, 1)

	if strings.Contains(text, "?") {
		score += 0.1
	}

	disclosure := 0.0
	for _, s := range disclosureSignals {
		if strings.Contains(lower, s) {
			disclosure += 0.1
		}
	}
	score += math.Min(disclosure, 0.3)

	label, affect := detectEmotion(lower)
	score += math.Min(affect, 0.3)

	// Floor so that any real message grows the bond a little.
	score = math.Max(score, 0.25)

	return Richness{
		Quality:   math.Min(score, 1),
		Emotional: affect >= emotionalThreshold,
		Label:     label,
	}
}

// detectEmotion returns the strongest emotion label and its score.
func detectEmotion(lower string) (string, float64) {
	best, bestScore := "neutral", 0.0
	for _, label := range []string{"affection", "joy", "sadness", "anger", "fear"} {
		var score float64
		for _, s := range emotionSignals[label] {
			if strings.Contains(lower, s.phrase) {
				score += s.weight
			}
		}
		if score > bestScore {
			best, bestScore = label, score
		}
	}

	// Exclamation marks amplify whatever is already there.
	if bestScore > 0 {
		if n := strings.Count(lower, "!"); n >= 2 {
			bestScore += math.Min(float64(n)*0.1, 0.2)
		}
	}
	return best, bestScore
}
