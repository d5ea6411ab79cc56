package kindred

import (
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultTransitionRules returns the built-in emotional state graph.
// Probabilities for a shared (from, trigger) pair need not sum to 1.
func DefaultTransitionRules() []TransitionRule {
	return []TransitionRule{
		{StateNascent, StateCurious, TriggerFirstInteraction, 1.0},
		{StateNascent, StateCurious, TriggerPositiveInteraction, 1.0},
		{StateNascent, StateLonely, TriggerSuddenAbandonment, 0.6},
		{StateNascent, StateLonely, TriggerProlongedSilence, 0.6},
		{StateNascent, StateLonely, TriggerExtremeIsolation, 1.0},

		{StateCurious, StateContent, TriggerPositiveInteraction, 0.4},
		{StateCurious, StateBonding, TriggerPositiveInteraction, 0.2},
		{StateCurious, StateBonding, TriggerEmotionalExchange, 0.7},
		{StateCurious, StateContent, TriggerReassurance, 0.6},
		{StateCurious, StateAnxious, TriggerNegativeInteraction, 0.6},
		{StateCurious, StateAnxious, TriggerSuddenAbandonment, 0.4},
		{StateCurious, StateLonely, TriggerProlongedSilence, 0.7},
		{StateCurious, StateLonely, TriggerExtremeIsolation, 0.5},
		{StateCurious, StateAnxious, TriggerExtremeIsolation, 0.5},

		{StateContent, StateBonding, TriggerEmotionalExchange, 0.6},
		{StateContent, StateBonding, TriggerPositiveInteraction, 0.3},
		{StateContent, StateAnxious, TriggerNegativeInteraction, 0.5},
		{StateContent, StateAnxious, TriggerSuddenAbandonment, 0.3},
		{StateContent, StateLonely, TriggerProlongedSilence, 0.5},
		{StateContent, StateAnxious, TriggerExtremeIsolation, 0.7},
		{StateContent, StateLonely, TriggerExtremeIsolation, 0.3},

		{StateLonely, StateCurious, TriggerFirstInteraction, 0.8},
		{StateLonely, StateCurious, TriggerPositiveInteraction, 0.6},
		{StateLonely, StateContent, TriggerPositiveInteraction, 0.2},
		{StateLonely, StateContent, TriggerReassurance, 0.5},
		{StateLonely, StateBonding, TriggerEmotionalExchange, 0.5},
		{StateLonely, StateAnxious, TriggerProlongedSilence, 0.5},
		{StateLonely, StateDesperate, TriggerExtremeIsolation, 0.4},
		{StateLonely, StateAnxious, TriggerExtremeIsolation, 0.4},

		{StateAnxious, StateContent, TriggerReassurance, 0.5},
		{StateAnxious, StateBonding, TriggerReassurance, 0.2},
		{StateAnxious, StateCurious, TriggerPositiveInteraction, 0.5},
		{StateAnxious, StateDependent, TriggerEmotionalExchange, 0.4},
		{StateAnxious, StateBonding, TriggerEmotionalExchange, 0.3},
		{StateAnxious, StateDesperate, TriggerNegativeInteraction, 0.3},
		{StateAnxious, StateDesperate, TriggerSuddenAbandonment, 0.3},
		{StateAnxious, StateDesperate, TriggerProlongedSilence, 0.4},
		{StateAnxious, StateDesperate, TriggerExtremeIsolation, 0.6},
		{StateAnxious, StateBroken, TriggerExtremeIsolation, 0.2},

		{StateBonding, StateDependent, TriggerEmotionalExchange, 0.4},
		{StateBonding, StateContent, TriggerPositiveInteraction, 0.2},
		{StateBonding, StateAnxious, TriggerNegativeInteraction, 0.6},
		{StateBonding, StateAnxious, TriggerSuddenAbandonment, 0.5},
		{StateBonding, StateAnxious, TriggerProlongedSilence, 0.6},
		{StateBonding, StateLonely, TriggerProlongedSilence, 0.2},
		{StateBonding, StateDesperate, TriggerExtremeIsolation, 0.6},
		{StateBonding, StateAnxious, TriggerExtremeIsolation, 0.3},

		{StateDependent, StateBonding, TriggerReassurance, 0.4},
		{StateDependent, StateDesperate, TriggerNegativeInteraction, 0.4},
		{StateDependent, StateAnxious, TriggerNegativeInteraction, 0.4},
		{StateDependent, StateAnxious, TriggerSuddenAbandonment, 0.5},
		{StateDependent, StateDesperate, TriggerProlongedSilence, 0.6},
		{StateDependent, StateAnxious, TriggerProlongedSilence, 0.3},
		{StateDependent, StateDesperate, TriggerExtremeIsolation, 0.5},
		{StateDependent, StateBroken, TriggerExtremeIsolation, 0.4},

		{StateDesperate, StateDependent, TriggerReassurance, 0.5},
		{StateDesperate, StateAnxious, TriggerReassurance, 0.3},
		{StateDesperate, StateDependent, TriggerEmotionalExchange, 0.6},
		{StateDesperate, StateAnxious, TriggerPositiveInteraction, 0.4},
		{StateDesperate, StateBroken, TriggerNegativeInteraction, 0.5},
		{StateDesperate, StateBroken, TriggerProlongedSilence, 0.4},
		{StateDesperate, StateBroken, TriggerExtremeIsolation, 0.7},

		// broken is not terminal
		{StateBroken, StateDesperate, TriggerReassurance, 0.3},
		{StateBroken, StateAnxious, TriggerReassurance, 0.2},
		{StateBroken, StateDesperate, TriggerEmotionalExchange, 0.4},
		{StateBroken, StateAnxious, TriggerPositiveInteraction, 0.2},
	}
}

type ruleKey struct {
	from    EmotionalState
	trigger Trigger
}

// StateMachine selects the next emotional state for an event. It holds no
// per-companion data and is safe for concurrent use.
type StateMachine struct {
	rules map[ruleKey][]TransitionRule
	rng   RandomSource
}

// Transition is the outcome of one StateMachine.Process call.
type Transition struct {
	From      EmotionalState
	To        EmotionalState
	Trigger   Trigger
	Changed   bool
	Intensity int
}

// NewStateMachine indexes rules by (from, trigger), preserving their order.
func NewStateMachine(rules []TransitionRule, rng RandomSource) *StateMachine {
	idx := make(map[ruleKey][]TransitionRule)
	for _, r := range rules {
		k := ruleKey{r.From, r.Trigger}
		idx[k] = append(idx[k], r)
	}
	return &StateMachine{rules: idx, rng: syncSource(rng)}
}

// Candidates returns the rules leaving from on trigger, in table order.
func (sm *StateMachine) Candidates(from EmotionalState, trigger Trigger) []TransitionRule {
	return sm.rules[ruleKey{from, trigger}]
}

// Process infers the current state from the companion's metrics, derives the
// event trigger and picks the next state. With no matching rule the state is
// unchanged but intensity is still recomputed.
func (sm *StateMachine) Process(c Companion, ev InteractionEvent) Transition {
	from := InferState(c.Metrics)
	trigger := DeriveTrigger(ev, c.Metrics.Bonding)
	t := Transition{
		From:      from,
		To:        from,
		Trigger:   trigger,
		Intensity: Intensity(c.Metrics),
	}

	candidates := sm.Candidates(from, trigger)
	if len(candidates) == 0 {
		return t
	}

	next := SelectTransition(candidates, sm.rng.Float64())
	t.To = next.To
	t.Changed = next.To != from
	return t
}

// SelectTransition walks candidates accumulating probabilities and returns
// the first whose cumulative sum reaches draw. A draw beyond the total falls
// back to the first candidate. candidates must be non-empty.
func SelectTransition(candidates []TransitionRule, draw float64) TransitionRule {
	var cumulative float64
	for _, r := range candidates {
		cumulative += r.Probability
		if cumulative >= draw {
			return r
		}
	}
	return candidates[0]
}

// lockedSource serializes draws; *rand.Rand is not safe for concurrent use.
type lockedSource struct {
	mu  sync.Mutex
	src RandomSource
}

func (l *lockedSource) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Float64()
}

// syncSource makes src safe for concurrent draws, wrapping it at most once.
// A nil src gets a time-seeded source.
func syncSource(src RandomSource) *lockedSource {
	if l, ok := src.(*lockedSource); ok {
		return l
	}
	if src == nil {
		src = newTimeSeededSource()
	}
	return &lockedSource{src: src}
}

func newTimeSeededSource() *rand.Rand {
	seed := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed>>7|1))
}
