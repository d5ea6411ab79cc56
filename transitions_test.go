package kindred

import (
	"sync"
	"testing"
)

// fixedSource always draws the same value.
type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

// sequenceSource replays draws in order, then repeats the last one.
type sequenceSource struct {
	draws []float64
	i     int
}

func (s *sequenceSource) Float64() float64 {
	d := s.draws[s.i]
	if s.i < len(s.draws)-1 {
		s.i++
	}
	return d
}

func TestSelectTransitionCumulative(t *testing.T) {
	candidates := []TransitionRule{
		{From: StateCurious, To: StateContent, Trigger: TriggerPositiveInteraction, Probability: 0.4},
		{From: StateCurious, To: StateBonding, Trigger: TriggerPositiveInteraction, Probability: 0.2},
	}

	tests := []struct {
		draw float64
		want EmotionalState
	}{
		{0.0, StateContent},
		{0.4, StateContent}, // meets the cumulative sum exactly
		{0.41, StateBonding},
		{0.6, StateBonding},
		{0.61, StateContent}, // beyond the total: first candidate
		{0.99, StateContent},
	}
	for _, tt := range tests {
		if got := SelectTransition(candidates, tt.draw); got.To != tt.want {
			t.Errorf("draw %.2f: got %s, want %s", tt.draw, got.To, tt.want)
		}
	}
}

func TestNascentFirstMessageBecomesCurious(t *testing.T) {
	for _, draw := range []float64{0, 0.5, 0.999} {
		sm := NewStateMachine(DefaultTransitionRules(), fixedSource(draw))
		tr := sm.Process(Companion{}, InteractionEvent{Kind: EventMessage, Content: "hi"})
		if tr.From != StateNascent || tr.To != StateCurious || !tr.Changed {
			t.Errorf("draw %.3f: expected nascent -> curious, got %+v", draw, tr)
		}
		if tr.Trigger != TriggerFirstInteraction {
			t.Errorf("expected first_interaction, got %s", tr.Trigger)
		}
	}
}

func TestProcessNoMatchingRuleIsNoOp(t *testing.T) {
	rules := []TransitionRule{{From: StateCurious, To: StateContent, Trigger: TriggerReassurance, Probability: 1}}
	sm := NewStateMachine(rules, fixedSource(0))

	c := Companion{Metrics: Metrics{Bonding: 25, Trust: 50, Dependency: 10}}
	tr := sm.Process(c, InteractionEvent{Kind: EventCriticized})
	if tr.Changed || tr.To != StateCurious {
		t.Errorf("expected unchanged curious, got %+v", tr)
	}
	if tr.Intensity != Intensity(c.Metrics) {
		t.Errorf("intensity must still be computed: got %d", tr.Intensity)
	}
}

func TestProcessUsesInjectedSource(t *testing.T) {
	src := &sequenceSource{draws: []float64{0.1, 0.5, 0.9}}
	sm := NewStateMachine(DefaultTransitionRules(), src)
	curious := Companion{Metrics: Metrics{Bonding: 25, Trust: 50, Dependency: 10}}
	ev := InteractionEvent{Kind: EventMessage}

	want := []EmotionalState{StateContent, StateBonding, StateContent}
	for i, w := range want {
		if got := sm.Process(curious, ev).To; got != w {
			t.Errorf("draw %d: got %s, want %s", i, got, w)
		}
	}
}

func TestBrokenIsNotTerminal(t *testing.T) {
	sm := NewStateMachine(DefaultTransitionRules(), fixedSource(0))
	targets := map[EmotionalState]bool{}
	for _, trig := range []Trigger{TriggerReassurance, TriggerEmotionalExchange, TriggerPositiveInteraction} {
		for _, r := range sm.Candidates(StateBroken, trig) {
			targets[r.To] = true
		}
	}
	if !targets[StateDesperate] || !targets[StateAnxious] {
		t.Errorf("broken must lead back to desperate and anxious, got %v", targets)
	}
}

func TestEveryStateHasOutboundRules(t *testing.T) {
	from := map[EmotionalState]bool{}
	for _, r := range DefaultTransitionRules() {
		from[r.From] = true
		if r.Probability <= 0 || r.Probability > 1 {
			t.Errorf("rule %+v: probability out of range", r)
		}
	}
	for _, s := range []EmotionalState{
		StateNascent, StateCurious, StateContent, StateLonely, StateAnxious,
		StateBonding, StateDependent, StateDesperate, StateBroken,
	} {
		if !from[s] {
			t.Errorf("state %s has no outbound rules", s)
		}
	}
}

func TestStateMachineConcurrentUse(t *testing.T) {
	sm := NewStateMachine(DefaultTransitionRules(), newTimeSeededSource())
	c := Companion{Metrics: Metrics{Bonding: 25, Trust: 50, Dependency: 10}}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sm.Process(c, InteractionEvent{Kind: EventMessage})
		}()
	}
	wg.Wait()
}

func TestSyncSourceWrapsOnce(t *testing.T) {
	l := syncSource(fixedSource(0.5))
	if again := syncSource(l); again != l {
		t.Error("an already locked source must not be wrapped again")
	}
	sm := NewStateMachine(DefaultTransitionRules(), l)
	if sm.rng != RandomSource(l) {
		t.Error("state machine re-wrapped a locked source")
	}
	if syncSource(nil).src == nil {
		t.Error("nil source must fall back to a seeded one")
	}
}
