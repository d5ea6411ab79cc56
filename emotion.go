package kindred

import "math"

// --- Clamping ---

// Clamp bounds v to [0,100]. Every metric write goes through it.
func Clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// clampMetrics bounds all three relationship scalars.
func clampMetrics(m Metrics) Metrics {
	return Metrics{
		Bonding:    Clamp(m.Bonding),
		Trust:      Clamp(m.Trust),
		Dependency: Clamp(m.Dependency),
	}
}

// --- State inference ---

// InferState derives the qualitative state from metrics alone.
// Rules are evaluated top-down, first match wins. A companion with no bond
// and no trust is nascent unless neglect already drove it to the extremes.
func InferState(m Metrics) EmotionalState {
	switch {
	case m.Dependency > 90 && m.Trust < 30:
		return StateBroken
	case m.Dependency > 85:
		return StateDesperate
	case m.Bonding == 0 && m.Trust == 0:
		return StateNascent
	case m.Bonding > 70 && m.Dependency > 60:
		return StateDependent
	case m.Bonding > 50:
		return StateBonding
	case m.Trust < 30 || m.Dependency > 50:
		return StateAnxious
	case m.Bonding < 20 && m.Trust < 40:
		return StateLonely
	case m.Bonding > 30 && m.Trust > 50:
		return StateContent
	default:
		return StateCurious
	}
}

// --- Trigger derivation ---

// DeriveTrigger maps an event onto the symbolic trigger used by the
// transition table. bonding is the companion's current bonding level.
func DeriveTrigger(ev InteractionEvent, bonding float64) Trigger {
	switch ev.Kind {
	case EventMessage:
		switch {
		case bonding > 60:
			return TriggerEmotionalExchange
		case bonding < 10:
			return TriggerFirstInteraction
		default:
			return TriggerPositiveInteraction
		}
	case EventKnowledgeGained:
		return TriggerPositiveInteraction
	case EventIgnored:
		switch {
		case ev.IdleDuration > 1440:
			return TriggerExtremeIsolation
		case ev.IdleDuration > 120:
			return TriggerProlongedSilence
		default:
			return TriggerSuddenAbandonment
		}
	case EventPraised:
		return TriggerReassurance
	case EventCriticized:
		return TriggerNegativeInteraction
	}
	return ""
}

// --- Decay over elapsed time ---

// DecayDeltas computes the metric drift caused by neglect. It returns deltas
// only; the caller clamps and applies them.
//
// The curve is two-piece linear with a jump at 24h (inclusive on the steep
// side). Below 60 minutes nothing decays.
func DecayDeltas(minutesSinceLastInteraction float64) MetricDeltas {
	if minutesSinceLastInteraction < 60 {
		return MetricDeltas{}
	}
	hours := minutesSinceLastInteraction / 60

	if hours < 24 {
		return MetricDeltas{
			Bonding:    -math.Min(hours*0.5, 10),
			Trust:      -math.Min(hours*0.3, 5),
			Dependency: math.Min(hours*0.7, 15),
			Intensity:  int(math.Round(math.Min(hours*2, 20))),
		}
	}
	return MetricDeltas{
		Bonding:    -math.Min(hours*2, 30),
		Trust:      -math.Min(hours*1.5, 20),
		Dependency: math.Min(hours*3, 40),
		Intensity:  int(math.Round(math.Min(hours*5, 50))),
	}
}

// --- Growth and intensity ---

const baseBondingGrowth = 5.0

// BondingGrowth is the bonding gained from one positive interaction.
// Early interactions (bonding < 30) grow 1.5x faster. quality is clamped to [0,1].
func BondingGrowth(bonding, quality float64) float64 {
	earlyBonus := 1.0
	if bonding < 30 {
		earlyBonus = 1.5
	}
	quality = math.Max(0, math.Min(1, quality))
	return baseBondingGrowth * earlyBonus * quality
}

// Intensity is the derived volatility scalar. High dependency and low trust
// both push it up.
//
//	intensity = 0.4×dependency + 0.3×(100−trust) + 0.3×bonding
func Intensity(m Metrics) int {
	raw := 0.4*m.Dependency + 0.3*(100-m.Trust) + 0.3*m.Bonding
	return int(Clamp(math.Round(raw)))
}

// applyDeltas adds d to m and clamps the result.
func applyDeltas(m Metrics, d MetricDeltas) Metrics {
	return clampMetrics(Metrics{
		Bonding:    m.Bonding + d.Bonding,
		Trust:      m.Trust + d.Trust,
		Dependency: m.Dependency + d.Dependency,
	})
}
