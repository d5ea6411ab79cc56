package kindred

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
)

// EmotionalState is one of the nine qualitative states of a companion.
type EmotionalState string

const (
	StateNascent   EmotionalState = "nascent"   // initial, no bond and no trust yet
	StateCurious   EmotionalState = "curious"   // default resting state
	StateContent   EmotionalState = "content"   // moderate bond, trusting
	StateLonely    EmotionalState = "lonely"    // weak bond, little trust
	StateAnxious   EmotionalState = "anxious"   // low trust or rising dependency
	StateBonding   EmotionalState = "bonding"   // bond past the halfway mark
	StateDependent EmotionalState = "dependent" // strong bond, high dependency
	StateDesperate EmotionalState = "desperate" // dependency near the ceiling
	StateBroken    EmotionalState = "broken"    // extreme dependency with trust gone
)

// Trigger is the symbolic key an interaction event is reduced to before the
// transition table is consulted.
type Trigger string

const (
	TriggerFirstInteraction    Trigger = "first_interaction"
	TriggerPositiveInteraction Trigger = "positive_interaction"
	TriggerEmotionalExchange   Trigger = "emotional_exchange"
	TriggerNegativeInteraction Trigger = "negative_interaction"
	TriggerReassurance         Trigger = "reassurance"
	TriggerSuddenAbandonment   Trigger = "sudden_abandonment"
	TriggerProlongedSilence    Trigger = "prolonged_silence"
	TriggerExtremeIsolation    Trigger = "extreme_isolation"
)

// EventKind enumerates the external events the pipeline accepts.
type EventKind string

const (
	EventMessage         EventKind = "message"
	EventKnowledgeGained EventKind = "knowledge_gained"
	EventIgnored         EventKind = "ignored"
	EventPraised         EventKind = "praised"
	EventCriticized      EventKind = "criticized"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventMessage, EventKnowledgeGained, EventIgnored, EventPraised, EventCriticized:
		return true
	}
	return false
}

// InteractionEvent is an immutable input to ProcessInteraction. It is consumed
// once and never persisted as-is.
type InteractionEvent struct {
	Kind         EventKind
	Content      string    // message text, or the domain name for knowledge_gained
	OccurredAt   time.Time // zero means "now"
	IdleDuration float64   // minutes since last interaction, required (> 0) for ignored
	MessageCount int       // messages in the current exchange, default 1
}

// Metrics are the three bounded relationship scalars, each in [0,100].
type Metrics struct {
	Bonding    float64 `json:"bonding"`
	Trust      float64 `json:"trust"`
	Dependency float64 `json:"dependency"`
}

// Companion is the aggregate root of the engine.
type Companion struct {
	ID                 string
	Name               string
	Metrics            Metrics
	EmotionalIntensity int            // derived, recomputed on every write
	CurrentState       EmotionalState // cached label, written with Metrics
	KnowledgeDomains   []string
	InteractionCount   int
	CreatedAt          time.Time
	LastInteractionAt  time.Time
}

// MemoryType classifies a Memory and fixes its weight/decay policy.
type MemoryType string

const (
	MemoryConversation MemoryType = "conversation"
	MemoryEmotion      MemoryType = "emotion"
	MemoryMilestone    MemoryType = "milestone"
	MemoryTrauma       MemoryType = "trauma"
)

// Author records who produced the content a Memory summarizes.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorCompanion Author = "companion"
	AuthorSystem    Author = "system"
)

// Memory is a durable, decaying record owned by one Companion.
type Memory struct {
	ID                 int64
	CompanionID        string
	Type               MemoryType
	Author             Author
	Content            string
	EmotionalWeight    float64 // 0.0 – 1.0
	DecayRate          float64 // weight lost per day; 0 = permanent
	ReinforcementCount int
	CreatedAt          time.Time
	LastAccessedAt     time.Time
}

// Permanent reports whether the memory can never decay.
func (m Memory) Permanent() bool {
	return m.DecayRate == 0
}

// TransitionRule is one weighted edge of the emotional state graph.
type TransitionRule struct {
	From        EmotionalState
	To          EmotionalState
	Trigger     Trigger
	Probability float64
}

// MetricDeltas is the net change an interaction applied to a companion.
type MetricDeltas struct {
	Bonding    float64 `json:"bonding"`
	Trust      float64 `json:"trust"`
	Dependency float64 `json:"dependency"`
	Intensity  int     `json:"intensity"`
}

// ProcessResult is returned from Engine.ProcessInteraction.
type ProcessResult struct {
	Profile       PersonalityProfile
	StateChanged  bool
	PreviousState EmotionalState
	NewState      EmotionalState
	Trigger       Trigger
	MetricDeltas  MetricDeltas
	Memory        *Memory // nil when the interaction was not significant
}

// SweepResult reports what a decay sweep did for one companion.
type SweepResult struct {
	Updated int
	Deleted int
}

// RandomSource yields uniform values in [0,1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// Config holds Engine initialization parameters.
type Config struct {
	DBPath             string        // Path to SQLite file (default: ./data/kindred.db)
	DecayInterval      time.Duration // Default 1h
	MinMemoryWeight    float64       // Memories at or below this are deleted (default 0.01)
	RetrievalMinWeight float64       // Recall only returns memories above this (default 0.3)
	ContextMemoryLimit int           // Memories rendered into generator context (default 10)
	RecentMemoryWindow int           // Memories loaded for profile synthesis (default 50)

	Rules      []TransitionRule      // Default DefaultTransitionRules()
	Random     RandomSource          // Default time-seeded PCG source
	Now        func() time.Time      // Default time.Now
	Generator  ResponseGenerator     // Optional; nil means canned responses only
	Locker     Locker                // Default in-process KeyedMutex
	Logger     *log.Logger           // Default stderr logger prefixed "kindred"
	Registerer prometheus.Registerer // Optional; nil keeps metrics unregistered
}

// ApplyDefaults fills zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "./data/kindred.db"
	}
	if c.DecayInterval == 0 {
		c.DecayInterval = time.Hour
	}
	if c.MinMemoryWeight == 0 {
		c.MinMemoryWeight = 0.01
	}
	if c.RetrievalMinWeight == 0 {
		c.RetrievalMinWeight = 0.3
	}
	if c.ContextMemoryLimit == 0 {
		c.ContextMemoryLimit = 10
	}
	if c.RecentMemoryWindow == 0 {
		c.RecentMemoryWindow = 50
	}
	if c.Rules == nil {
		c.Rules = DefaultTransitionRules()
	}
	if c.Random == nil {
		c.Random = newTimeSeededSource()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Locker == nil {
		c.Locker = NewKeyedMutex()
	}
	if c.Logger == nil {
		c.Logger = newLogger()
	}
}
