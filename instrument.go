package kindred

import "github.com/prometheus/client_golang/prometheus"

// Instruments are the engine's Prometheus collectors. They are always
// usable; they are only exported when a Registerer is configured.
type Instruments struct {
	Interactions       *prometheus.CounterVec // by event kind
	Transitions        *prometheus.CounterVec // by from, to
	MemoriesWritten    *prometheus.CounterVec // by memory type
	MemoriesDecayed    prometheus.Counter
	GeneratorFallbacks *prometheus.CounterVec // by reason
}

func newInstruments(reg prometheus.Registerer) (*Instruments, error) {
	in := &Instruments{
		Interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kindred",
			Name:      "interactions_total",
			Help:      "Interaction events processed, by kind.",
		}, []string{"kind"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kindred",
			Name:      "state_transitions_total",
			Help:      "Emotional state changes, by source and target state.",
		}, []string{"from", "to"}),
		MemoriesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kindred",
			Name:      "memories_written_total",
			Help:      "Memories written, by type.",
		}, []string{"type"}),
		MemoriesDecayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kindred",
			Name:      "memories_decayed_total",
			Help:      "Memories deleted by the decay sweep.",
		}),
		GeneratorFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kindred",
			Name:      "generator_fallbacks_total",
			Help:      "Canned responses served instead of generated ones, by reason.",
		}, []string{"reason"}),
	}

	if reg == nil {
		return in, nil
	}
	for _, c := range []prometheus.Collector{
		in.Interactions, in.Transitions, in.MemoriesWritten, in.MemoriesDecayed, in.GeneratorFallbacks,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return in, nil
}
