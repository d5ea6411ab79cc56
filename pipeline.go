package kindred

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// validateEvent rejects events the pipeline cannot interpret.
func validateEvent(ev InteractionEvent) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("kindred: event kind %q: %w", ev.Kind, ErrInvalidEvent)
	}
	if ev.Kind == EventIgnored && ev.IdleDuration <= 0 {
		return fmt.Errorf("kindred: ignored needs a positive idle duration, got %.1f: %w", ev.IdleDuration, ErrInvalidEvent)
	}
	if ev.Kind == EventKnowledgeGained && strings.TrimSpace(ev.Content) == "" {
		return fmt.Errorf("kindred: knowledge_gained without a domain: %w", ErrInvalidEvent)
	}
	return nil
}

// elapsedMinutes is the idle time decay is computed over. An ignored event
// carries its own idle duration; everything else is measured from the last
// interaction.
func elapsedMinutes(c Companion, ev InteractionEvent, now time.Time) float64 {
	if ev.Kind == EventIgnored {
		return ev.IdleDuration
	}
	if c.LastInteractionAt.IsZero() {
		return 0
	}
	return math.Max(0, now.Sub(c.LastInteractionAt).Minutes())
}

// eventDeltas are the direct metric effects of an event, applied after decay.
func eventDeltas(ev InteractionEvent, m Metrics, quality float64) MetricDeltas {
	switch ev.Kind {
	case EventMessage:
		return MetricDeltas{Bonding: BondingGrowth(m.Bonding, quality), Trust: 1}
	case EventKnowledgeGained:
		return MetricDeltas{Bonding: BondingGrowth(m.Bonding, 1.0), Trust: 3}
	case EventPraised:
		return MetricDeltas{Bonding: BondingGrowth(m.Bonding, 0.5), Trust: 5, Dependency: 2}
	case EventCriticized:
		return MetricDeltas{Trust: -8, Dependency: 5}
	}
	return MetricDeltas{}
}

// addDomain appends domain unless it is already known (case-insensitive).
func addDomain(domains []string, domain string) []string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return domains
	}
	if slices.ContainsFunc(domains, func(d string) bool { return strings.EqualFold(d, domain) }) {
		return domains
	}
	return append(domains, domain)
}

// memoryFor picks the single memory an interaction leaves behind, or nil.
// The first matching rule wins: trauma, milestone, emotion, conversation.
func memoryFor(before, after Companion, ev InteractionEvent, tr Transition, now time.Time) *Memory {
	id := after.ID
	intensity := after.EmotionalIntensity
	beforeStage := StageForBonding(before.Metrics.Bonding)
	afterStage := StageForBonding(after.Metrics.Bonding)

	var m Memory
	switch {
	case (tr.Trigger == TriggerExtremeIsolation || tr.Trigger == TriggerSuddenAbandonment) &&
		(tr.To == StateBroken || tr.To == StateDesperate):
		m = NewTraumaMemory(id, fmt.Sprintf("left alone for %s and became %s", formatIdle(ev.IdleDuration), tr.To), now)

	case tr.Trigger == TriggerFirstInteraction && before.InteractionCount == 0:
		m = NewMilestoneMemory(id, "first conversation", now)
	case ev.Kind == EventKnowledgeGained:
		m = NewMilestoneMemory(id, "learned about "+strings.TrimSpace(ev.Content), now)
	case beforeStage != afterStage:
		m = NewMilestoneMemory(id, fmt.Sprintf("our relationship became %s", afterStage), now)

	case ev.Kind == EventPraised:
		m = NewEmotionMemory(id, withQuote("felt reassured when praised", ev.Content), intensity, now)
	case ev.Kind == EventCriticized:
		m = NewEmotionMemory(id, withQuote("felt hurt when criticized", ev.Content), intensity, now)
	case tr.Changed:
		m = NewEmotionMemory(id, fmt.Sprintf("went from %s to %s", tr.From, tr.To), intensity, now)

	case ev.Kind == EventMessage && strings.TrimSpace(ev.Content) != "":
		m = NewConversationMemory(id, AuthorUser, ev.Content, intensity, ev.MessageCount, now)

	default:
		return nil
	}
	return &m
}

func withQuote(s, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return s
	}
	return fmt.Sprintf("%s: %q", s, content)
}

func formatIdle(minutes float64) string {
	switch {
	case minutes >= 2880:
		return fmt.Sprintf("%.0f days", minutes/1440)
	case minutes >= 120:
		return fmt.Sprintf("%.0f hours", minutes/60)
	default:
		return fmt.Sprintf("%.0f minutes", minutes)
	}
}
