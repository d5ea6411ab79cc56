package kindred

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Engine is the companion consciousness engine.
// It binds the state machine, the memory store and the profile synthesizer
// behind one pipeline that runs serialized per companion.
type Engine struct {
	store       *Store
	machine     *StateMachine
	generator   *FallbackGenerator
	locker      Locker
	metrics     *Instruments
	logger      *log.Logger
	config      Config
	cancelDecay context.CancelFunc
	decayDone   chan struct{} // closed when the decay worker exits
}

// RespondResult is returned from Engine.Respond.
type RespondResult struct {
	Reply       GeneratedResponse
	Interaction ProcessResult
	Memory      *Memory // the recorded reply, nil if it was empty
}

func newLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "kindred",
		ReportTimestamp: true,
	})
}

// Init creates an Engine, runs DB migrations, and starts the decay worker.
// A negative DecayInterval disables the worker.
func Init(cfg Config) (*Engine, error) {
	cfg.ApplyDefaults()

	store, err := NewStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	metrics, err := newInstruments(cfg.Registerer)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("kindred: register metrics: %w", err)
	}

	// One lock around the shared source; the machine and the fallback both draw from it.
	rng := syncSource(cfg.Random)

	gen := NewFallbackGenerator(cfg.Generator, rng, cfg.Logger)
	gen.onFallback = func(reason string) {
		metrics.GeneratorFallbacks.WithLabelValues(reason).Inc()
	}

	e := &Engine{
		store:     store,
		machine:   NewStateMachine(cfg.Rules, rng),
		generator: gen,
		locker:    cfg.Locker,
		metrics:   metrics,
		logger:    cfg.Logger,
		config:    cfg,
	}

	e.startDecayWorker(cfg.DecayInterval)

	e.logger.Info("initialized", "db", cfg.DBPath, "decay", cfg.DecayInterval, "generator", cfg.Generator != nil)
	return e, nil
}

// Close shuts down the decay worker and closes the database.
func (e *Engine) Close() error {
	if e.cancelDecay != nil {
		e.cancelDecay()
		<-e.decayDone
	}
	return e.store.Close()
}

// CreateCompanion stores a new nascent companion with zeroed metrics.
func (e *Engine) CreateCompanion(ctx context.Context, name string) (Companion, error) {
	now := e.config.Now()
	c := Companion{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(name),
		CurrentState:      StateNascent,
		KnowledgeDomains:  []string{},
		CreatedAt:         now,
		LastInteractionAt: now,
	}
	c = normalizeCompanion(c)
	if err := e.store.InsertCompanion(ctx, c); err != nil {
		return Companion{}, err
	}
	e.logger.Info("companion created", "id", c.ID, "name", c.Name)
	return c, nil
}

// GetCompanion loads a companion. Returns ErrCompanionNotFound if absent.
func (e *Engine) GetCompanion(ctx context.Context, companionID string) (Companion, error) {
	return e.store.GetCompanion(ctx, companionID)
}

// CompanionIDs lists every stored companion.
func (e *Engine) CompanionIDs(ctx context.Context) ([]string, error) {
	return e.store.ListCompanionIDs(ctx)
}

// ProcessInteraction runs one event through the pipeline: decay for the
// elapsed time, pick a transition, apply the event's effects, write at most
// one memory, and synthesize the new profile. Metrics and the memory are
// committed together or not at all.
//
// Events are not idempotent: replaying one applies its effects again.
func (e *Engine) ProcessInteraction(ctx context.Context, companionID string, ev InteractionEvent) (ProcessResult, error) {
	if err := validateEvent(ev); err != nil {
		return ProcessResult{}, err
	}

	unlock, err := e.locker.Lock(ctx, companionID)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("kindred: lock companion %s: %w", companionID, err)
	}
	defer unlock()

	before, err := e.store.GetCompanion(ctx, companionID)
	if err != nil {
		return ProcessResult{}, err
	}

	now := ev.OccurredAt
	if now.IsZero() {
		now = e.config.Now()
	}

	// 1. Decay for the time the companion was left alone
	c := before
	c.KnowledgeDomains = append([]string(nil), before.KnowledgeDomains...)
	c.Metrics = applyDeltas(c.Metrics, DecayDeltas(elapsedMinutes(before, ev, now)))

	// 2. Transition from the decayed state. The change is reported against
	// the cached state, which is what this call overwrites.
	tr := e.machine.Process(c, ev)
	tr.From = before.CurrentState
	tr.Changed = tr.To != before.CurrentState

	// 3. Event effects
	rich := ScoreInteraction(ev.Content)
	c.Metrics = applyDeltas(c.Metrics, eventDeltas(ev, c.Metrics, rich.Quality))
	if ev.Kind == EventKnowledgeGained {
		c.KnowledgeDomains = addDomain(c.KnowledgeDomains, ev.Content)
	}
	if ev.Kind != EventIgnored {
		c.InteractionCount++
	}
	if now.After(c.LastInteractionAt) {
		c.LastInteractionAt = now
	}
	c.CurrentState = tr.To
	c.EmotionalIntensity = Intensity(c.Metrics)

	// 4. Memory, committed with the metrics
	mem := memoryFor(before, c, ev, tr, now)
	if err := e.store.CommitInteraction(ctx, c, mem); err != nil {
		e.logger.Error("commit interaction failed", "companion", companionID, "err", err)
		return ProcessResult{}, err
	}

	e.metrics.Interactions.WithLabelValues(string(ev.Kind)).Inc()
	if tr.Changed {
		e.metrics.Transitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	}
	if mem != nil {
		e.metrics.MemoriesWritten.WithLabelValues(string(mem.Type)).Inc()
		e.logger.Debug("memory stored", "companion", companionID, "id", mem.ID, "type", mem.Type, "weight", mem.EmotionalWeight)
	}
	e.logger.Debug("interaction",
		"companion", companionID, "kind", ev.Kind, "trigger", tr.Trigger,
		"from", tr.From, "to", tr.To, "user_emotion", rich.Label)

	// 5. Profile
	profile := SynthesizeProfile(c, e.recentMemories(ctx, companionID))

	return ProcessResult{
		Profile:       profile,
		StateChanged:  tr.Changed,
		PreviousState: tr.From,
		NewState:      tr.To,
		Trigger:       tr.Trigger,
		MetricDeltas: MetricDeltas{
			Bonding:    c.Metrics.Bonding - before.Metrics.Bonding,
			Trust:      c.Metrics.Trust - before.Metrics.Trust,
			Dependency: c.Metrics.Dependency - before.Metrics.Dependency,
			Intensity:  c.EmotionalIntensity - Intensity(before.Metrics),
		},
		Memory: mem,
	}, nil
}

// RecordResponse stores the companion's own reply as a conversation memory.
// An empty reply is not recorded.
func (e *Engine) RecordResponse(ctx context.Context, companionID, text, emotionLabel string) (*Memory, error) {
	unlock, err := e.locker.Lock(ctx, companionID)
	if err != nil {
		return nil, fmt.Errorf("kindred: lock companion %s: %w", companionID, err)
	}
	defer unlock()

	c, err := e.store.GetCompanion(ctx, companionID)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if emotionLabel != "" {
		text = fmt.Sprintf("%s (feeling %s)", text, emotionLabel)
	}

	m := NewConversationMemory(c.ID, AuthorCompanion, text, c.EmotionalIntensity, 1, e.config.Now())
	id, err := e.store.InsertMemory(ctx, m)
	if err != nil {
		e.logger.Error("record response failed", "companion", companionID, "err", err)
		return nil, err
	}
	m.ID = id

	e.metrics.MemoriesWritten.WithLabelValues(string(m.Type)).Inc()
	return &m, nil
}

// Respond handles a user message end to end: process it, recall memories,
// generate a reply, and record it. A failing generator never fails Respond;
// a canned reply is used instead.
func (e *Engine) Respond(ctx context.Context, companionID, userMessage string, history []Turn) (RespondResult, error) {
	res, err := e.ProcessInteraction(ctx, companionID, InteractionEvent{
		Kind:         EventMessage,
		Content:      userMessage,
		MessageCount: len(history) + 1,
	})
	if err != nil {
		return RespondResult{}, err
	}

	memories, err := e.Recall(ctx, companionID, userMessage, e.config.ContextMemoryLimit)
	if err != nil {
		return RespondResult{}, err
	}

	reply, _ := e.generator.Generate(ctx, ResponseRequest{
		Profile:       res.Profile,
		MemoryContext: FormatMemoryContext(memories, e.config.Now(), e.config.ContextMemoryLimit),
		History:       history,
		UserMessage:   userMessage,
	})

	mem, err := e.RecordResponse(ctx, companionID, reply.Text, reply.EmotionLabel)
	if err != nil {
		return RespondResult{}, err
	}

	return RespondResult{Reply: reply, Interaction: res, Memory: mem}, nil
}

// Recall returns up to limit memories stronger than RetrievalMinWeight,
// most recently accessed first, and reinforces each one it returns.
// query is accepted for future relevance ranking and does not affect order.
func (e *Engine) Recall(ctx context.Context, companionID, query string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = e.config.ContextMemoryLimit
	}

	unlock, err := e.locker.Lock(ctx, companionID)
	if err != nil {
		return nil, fmt.Errorf("kindred: lock companion %s: %w", companionID, err)
	}
	defer unlock()

	if _, err := e.store.GetCompanion(ctx, companionID); err != nil {
		return nil, err
	}
	return e.store.RetrieveAndReinforce(ctx, companionID, e.config.RetrievalMinWeight, limit, e.config.Now())
}

// MemoryContext renders the strongest memories as generator context.
// It is read-only: nothing is reinforced.
func (e *Engine) MemoryContext(ctx context.Context, companionID string) (string, error) {
	if _, err := e.store.GetCompanion(ctx, companionID); err != nil {
		return "", err
	}
	memories, err := e.store.QueryMemories(ctx, companionID, MemoryQuery{
		MinWeight: e.config.RetrievalMinWeight,
		Order:     OrderStrongest,
		Limit:     e.config.ContextMemoryLimit,
	})
	if err != nil {
		return "", err
	}
	return FormatMemoryContext(memories, e.config.Now(), e.config.ContextMemoryLimit), nil
}

// Profile synthesizes the companion's current profile without changing it.
func (e *Engine) Profile(ctx context.Context, companionID string) (PersonalityProfile, error) {
	c, err := e.store.GetCompanion(ctx, companionID)
	if err != nil {
		return PersonalityProfile{}, err
	}
	return SynthesizeProfile(c, e.recentMemories(ctx, companionID)), nil
}

// RunDecaySweep decays one companion's memories and deletes the ones that
// fell to the floor. Calling it redundantly is harmless.
func (e *Engine) RunDecaySweep(ctx context.Context, companionID string) (SweepResult, error) {
	if _, err := e.store.GetCompanion(ctx, companionID); err != nil {
		return SweepResult{}, err
	}
	res, err := e.store.RunDecaySweep(ctx, companionID, e.config.MinMemoryWeight, e.config.Now())
	if err != nil {
		return SweepResult{}, err
	}
	e.metrics.MemoriesDecayed.Add(float64(res.Deleted))
	return res, nil
}

// recentMemories loads the newest memories for profile synthesis. A failed
// read degrades to an empty list.
func (e *Engine) recentMemories(ctx context.Context, companionID string) []Memory {
	memories, err := e.store.QueryMemories(ctx, companionID, MemoryQuery{
		Authors: []Author{AuthorCompanion},
		Order:   OrderNewest,
		Limit:   e.config.RecentMemoryWindow,
	})
	if err != nil {
		e.logger.Error("load recent memories failed", "companion", companionID, "err", err)
		return nil
	}
	return memories
}
