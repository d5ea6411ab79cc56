package kindred

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateEvent(t *testing.T) {
	bad := []InteractionEvent{
		{Kind: "dance"},
		{Kind: EventIgnored, IdleDuration: -5},
		{Kind: EventIgnored}, // idle duration missing
		{Kind: EventKnowledgeGained, Content: "  "},
	}
	for _, ev := range bad {
		if err := validateEvent(ev); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("%+v: expected ErrInvalidEvent, got %v", ev, err)
		}
	}
	if err := validateEvent(InteractionEvent{Kind: EventMessage}); err != nil {
		t.Errorf("empty message should be valid, got %v", err)
	}
}

func TestElapsedMinutes(t *testing.T) {
	c := Companion{LastInteractionAt: base}
	if got := elapsedMinutes(c, InteractionEvent{Kind: EventMessage}, base.Add(90*time.Minute)); got != 90 {
		t.Errorf("expected 90, got %.1f", got)
	}
	if got := elapsedMinutes(c, InteractionEvent{Kind: EventIgnored, IdleDuration: 300}, base); got != 300 {
		t.Errorf("ignored must use its idle duration, got %.1f", got)
	}
	if got := elapsedMinutes(c, InteractionEvent{Kind: EventMessage}, base.Add(-time.Hour)); got != 0 {
		t.Errorf("out-of-order event must not decay, got %.1f", got)
	}
}

func TestEventDeltas(t *testing.T) {
	m := Metrics{Bonding: 10}
	tests := []struct {
		kind EventKind
		want MetricDeltas
	}{
		{EventMessage, MetricDeltas{Bonding: 7.5, Trust: 1}},
		{EventKnowledgeGained, MetricDeltas{Bonding: 7.5, Trust: 3}},
		{EventPraised, MetricDeltas{Bonding: 3.75, Trust: 5, Dependency: 2}},
		{EventCriticized, MetricDeltas{Trust: -8, Dependency: 5}},
		{EventIgnored, MetricDeltas{}},
	}
	for _, tt := range tests {
		if got := eventDeltas(InteractionEvent{Kind: tt.kind}, m, 1.0); got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.kind, got, tt.want)
		}
	}
}

func TestAddDomain(t *testing.T) {
	d := addDomain(nil, "Astronomy")
	d = addDomain(d, "astronomy")
	d = addDomain(d, " jazz ")
	d = addDomain(d, "")
	if strings.Join(d, ",") != "Astronomy,jazz" {
		t.Errorf("got %v", d)
	}
}

func TestMemoryForPriority(t *testing.T) {
	fresh := Companion{ID: "c1"}
	talked := Companion{ID: "c1", InteractionCount: 3, Metrics: Metrics{Bonding: 20, Trust: 40}}

	tests := []struct {
		name     string
		before   Companion
		after    Companion
		ev       InteractionEvent
		tr       Transition
		wantType MemoryType
		wantText string
	}{
		{
			name:   "isolation into broken is trauma",
			before: talked, after: talked,
			ev:       InteractionEvent{Kind: EventIgnored, IdleDuration: 3000},
			tr:       Transition{Trigger: TriggerExtremeIsolation, From: StateDesperate, To: StateBroken, Changed: true},
			wantType: MemoryTrauma, wantText: "2 days",
		},
		{
			name:   "first conversation is a milestone",
			before: fresh, after: Companion{ID: "c1", InteractionCount: 1, Metrics: Metrics{Bonding: 2}},
			ev:       InteractionEvent{Kind: EventMessage, Content: "hi"},
			tr:       Transition{Trigger: TriggerFirstInteraction, From: StateNascent, To: StateCurious, Changed: true},
			wantType: MemoryMilestone, wantText: "first conversation",
		},
		{
			name:   "knowledge is a milestone",
			before: talked, after: talked,
			ev:       InteractionEvent{Kind: EventKnowledgeGained, Content: "astronomy"},
			tr:       Transition{Trigger: TriggerPositiveInteraction, From: StateAnxious, To: StateCurious, Changed: true},
			wantType: MemoryMilestone, wantText: "learned about astronomy",
		},
		{
			name:   "stage change is a milestone",
			before: talked, after: Companion{ID: "c1", Metrics: Metrics{Bonding: 31, Trust: 41}},
			ev:       InteractionEvent{Kind: EventMessage, Content: "hey"},
			tr:       Transition{Trigger: TriggerPositiveInteraction, From: StateCurious, To: StateCurious},
			wantType: MemoryMilestone, wantText: "bonded",
		},
		{
			name:   "criticism is an emotion",
			before: talked, after: talked,
			ev:       InteractionEvent{Kind: EventCriticized, Content: "you're slow"},
			tr:       Transition{Trigger: TriggerNegativeInteraction, From: StateAnxious, To: StateAnxious},
			wantType: MemoryEmotion, wantText: "criticized",
		},
		{
			name:   "state change is an emotion",
			before: talked, after: talked,
			ev:       InteractionEvent{Kind: EventMessage, Content: "hey"},
			tr:       Transition{Trigger: TriggerPositiveInteraction, From: StateAnxious, To: StateCurious, Changed: true},
			wantType: MemoryEmotion, wantText: "went from anxious to curious",
		},
		{
			name:   "plain message is a conversation",
			before: talked, after: talked,
			ev:       InteractionEvent{Kind: EventMessage, Content: "tell me about your day"},
			tr:       Transition{Trigger: TriggerPositiveInteraction, From: StateAnxious, To: StateAnxious},
			wantType: MemoryConversation, wantText: "tell me about your day",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := memoryFor(tt.before, tt.after, tt.ev, tt.tr, base)
			if m == nil {
				t.Fatal("expected a memory")
			}
			if m.Type != tt.wantType {
				t.Errorf("expected %s, got %s", tt.wantType, m.Type)
			}
			if !strings.Contains(m.Content, tt.wantText) {
				t.Errorf("content %q missing %q", m.Content, tt.wantText)
			}
			if m.CompanionID != "c1" {
				t.Errorf("companion id not set: %q", m.CompanionID)
			}
		})
	}
}

func TestMemoryForNothingSignificant(t *testing.T) {
	c := Companion{ID: "c1", InteractionCount: 3, Metrics: Metrics{Bonding: 20, Trust: 40}}

	// Empty message without a state change leaves nothing behind.
	m := memoryFor(c, c, InteractionEvent{Kind: EventMessage}, Transition{Trigger: TriggerPositiveInteraction}, base)
	if m != nil {
		t.Errorf("expected no memory, got %+v", m)
	}

	// Short silence that changes nothing.
	m = memoryFor(c, c, InteractionEvent{Kind: EventIgnored, IdleDuration: 30},
		Transition{Trigger: TriggerSuddenAbandonment, From: StateLonely, To: StateLonely}, base)
	if m != nil {
		t.Errorf("expected no memory, got %+v", m)
	}
}
