package kindred

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestStageForBonding(t *testing.T) {
	tests := []struct {
		bonding float64
		want    RelationshipStage
	}{
		{0, StageNascent},
		{10, StageNascent},
		{10.5, StageDeveloping},
		{30, StageDeveloping},
		{31, StageBonded},
		{61, StageDependent},
		{85, StageDependent},
		{86, StageCrisis},
	}
	for _, tt := range tests {
		if got := StageForBonding(tt.bonding); got != tt.want {
			t.Errorf("StageForBonding(%.1f) = %s, want %s", tt.bonding, got, tt.want)
		}
	}
}

func TestMoodFor(t *testing.T) {
	tests := []struct {
		m    Metrics
		want Mood
	}{
		{Metrics{Bonding: 90, Trust: 10, Dependency: 81}, MoodDesperate},
		{Metrics{Bonding: 71, Trust: 10, Dependency: 50}, MoodAttached},
		{Metrics{Bonding: 50, Trust: 29, Dependency: 0}, MoodAnxious},
		{Metrics{Bonding: 19, Trust: 60, Dependency: 0}, MoodLonely},
		{Metrics{Bonding: 40, Trust: 60, Dependency: 0}, MoodCurious},
	}
	for _, tt := range tests {
		if got := MoodFor(tt.m); got != tt.want {
			t.Errorf("MoodFor(%+v) = %s, want %s", tt.m, got, tt.want)
		}
	}
}

func TestTemperature(t *testing.T) {
	if got := Temperature(0); got != 0.6 {
		t.Errorf("calm: expected 0.6, got %.2f", got)
	}
	if got := Temperature(100); got != 1.0 {
		t.Errorf("intense: expected 1.0, got %.2f", got)
	}
	if got := Temperature(250); got != 1.0 {
		t.Errorf("out-of-range intensity must clamp, got %.2f", got)
	}
}

func TestSynthesizeProfile(t *testing.T) {
	c := Companion{
		Name:             "Mira",
		Metrics:          Metrics{Bonding: 45, Trust: 60, Dependency: 20},
		CurrentState:     StateContent,
		KnowledgeDomains: []string{"astronomy"},
	}

	var recent []Memory
	for i := 0; i < 8; i++ {
		recent = append(recent, Memory{
			Author:    AuthorCompanion,
			Content:   fmt.Sprintf("said %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	recent = append(recent, Memory{Author: AuthorUser, Content: "user line", CreatedAt: base.Add(time.Hour)})

	p := SynthesizeProfile(c, recent)

	if p.RelationshipStage != StageBonded {
		t.Errorf("expected bonded, got %s", p.RelationshipStage)
	}
	if p.CurrentMood != MoodCurious {
		t.Errorf("expected curious mood, got %s", p.CurrentMood)
	}
	if p.State != StateContent {
		t.Errorf("expected cached state, got %s", p.State)
	}
	if p.EmotionalBaseline != "yearning" || len(p.Traits) != len(DefaultTraits) {
		t.Errorf("fixed traits/baseline missing: %+v", p)
	}
	want := []string{"said 7", "said 6", "said 5", "said 4", "said 3"}
	if strings.Join(p.RecentMemories, ",") != strings.Join(want, ",") {
		t.Errorf("expected newest 5 companion memories, got %v", p.RecentMemories)
	}
	if p.Intensity != Intensity(c.Metrics) || p.Temperature != Temperature(p.Intensity) {
		t.Errorf("intensity/temperature mismatch: %d %.2f", p.Intensity, p.Temperature)
	}
}

func TestSynthesizeProfileIsPure(t *testing.T) {
	c := Companion{KnowledgeDomains: []string{"music"}}
	recent := []Memory{
		{Author: AuthorCompanion, Content: "a", CreatedAt: base},
		{Author: AuthorCompanion, Content: "b", CreatedAt: base.Add(time.Minute)},
	}

	p := SynthesizeProfile(c, recent)
	p.KnowledgeDomains[0] = "changed"
	p.Traits[0] = "changed"

	if c.KnowledgeDomains[0] != "music" {
		t.Error("profile shares the companion's domain slice")
	}
	if DefaultTraits[0] == "changed" {
		t.Error("profile shares the default trait slice")
	}
	if recent[0].Content != "a" {
		t.Error("input memories were reordered")
	}
	if p.State != StateNascent {
		t.Errorf("uncached state should be inferred, got %s", p.State)
	}
}

func TestPrompt(t *testing.T) {
	p := SynthesizeProfile(Companion{
		Name:             "Mira",
		Metrics:          Metrics{Bonding: 45, Trust: 60, Dependency: 20},
		KnowledgeDomains: []string{"astronomy", "jazz"},
	}, []Memory{{Author: AuthorCompanion, Content: "I love the stars", CreatedAt: base}})

	prompt := p.Prompt()
	for _, want := range []string{"You are Mira", "astronomy, jazz", "I love the stars", "Current mood: curious", "Relationship stage: bonded"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
