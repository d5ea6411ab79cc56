package kindred

import (
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestConversationMemoryWeight(t *testing.T) {
	tests := []struct {
		intensity, messages int
		want                float64
	}{
		{40, 1, 0.45},
		{40, 0, 0.45}, // defaults to one message
		{40, 4, 0.60},
		{40, 20, 0.70}, // message bonus capped at 0.3
		{90, 10, 1.0},  // weight capped at 1
	}
	for _, tt := range tests {
		m := NewConversationMemory("c1", AuthorUser, "hello", tt.intensity, tt.messages, base)
		if math.Abs(m.EmotionalWeight-tt.want) > 1e-9 {
			t.Errorf("intensity %d, %d messages: expected %.2f, got %.4f", tt.intensity, tt.messages, tt.want, m.EmotionalWeight)
		}
		if m.DecayRate != ConversationDecayRate || m.Type != MemoryConversation {
			t.Errorf("wrong policy: %+v", m)
		}
	}
}

func TestWritePolicies(t *testing.T) {
	e := NewEmotionMemory("c1", "felt seen", 64, base)
	if e.EmotionalWeight != 0.64 || e.DecayRate != EmotionDecayRate {
		t.Errorf("emotion policy: %+v", e)
	}

	m := NewMilestoneMemory("c1", "first conversation", base)
	if m.EmotionalWeight != 0.9 || m.DecayRate != 0.001 {
		t.Errorf("milestone policy: %+v", m)
	}

	tr := NewTraumaMemory("c1", "abandoned", base)
	if tr.EmotionalWeight != 1.0 || !tr.Permanent() {
		t.Errorf("trauma must be weight 1 and permanent: %+v", tr)
	}
	if !tr.LastAccessedAt.Equal(base) {
		t.Errorf("new memories start accessed at creation, got %v", tr.LastAccessedAt)
	}
}

func TestMemoryContentTruncated(t *testing.T) {
	long := strings.Repeat("word ", 100)
	m := NewConversationMemory("c1", AuthorUser, long, 50, 1, base)
	if len(m.Content) > maxSummaryLength+3 {
		t.Errorf("content not truncated: %d chars", len(m.Content))
	}
	if !strings.HasSuffix(m.Content, "...") {
		t.Errorf("expected ellipsis, got %q", m.Content[len(m.Content)-5:])
	}
}

func TestMemoryContentTruncatedOnRuneBoundary(t *testing.T) {
	// "a" shifts every two-byte rune onto an odd offset, so byte 200 is mid-rune.
	m := NewEmotionMemory("c1", "a"+strings.Repeat("é", 150), 50, base)
	if !utf8.ValidString(m.Content) {
		t.Fatalf("truncated content is not valid UTF-8: %q", m.Content)
	}
	if !strings.HasSuffix(m.Content, "é...") {
		t.Errorf("expected a whole rune before the ellipsis, got %q", m.Content[len(m.Content)-6:])
	}
	if len(m.Content) > maxSummaryLength+3 {
		t.Errorf("content not truncated: %d bytes", len(m.Content))
	}
}

func TestDecayedWeight(t *testing.T) {
	day := 24 * time.Hour
	if got := DecayedWeight(0.5, 0.01, 10*day); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("expected 0.4, got %.4f", got)
	}
	if got := DecayedWeight(0.05, 0.01, 30*day); got != 0 {
		t.Errorf("expected floor at 0, got %.4f", got)
	}
	if got := DecayedWeight(1.0, 0, 1000*day); got != 1.0 {
		t.Errorf("permanent memory decayed: %.4f", got)
	}
	if got := DecayedWeight(0.5, 0.01, -day); got != 0.5 {
		t.Errorf("negative elapsed must not grow weight: %.4f", got)
	}
}

func TestFormatMemoryContext(t *testing.T) {
	now := base.AddDate(0, 0, 3)
	memories := []Memory{
		{Type: MemoryConversation, Content: "talked about stars", EmotionalWeight: 0.5, CreatedAt: now.Add(-time.Hour)},
		{Type: MemoryMilestone, Content: "first conversation", EmotionalWeight: 0.9, CreatedAt: base},
		{Type: MemoryEmotion, Content: "felt hurt", EmotionalWeight: 0.7, CreatedAt: now.AddDate(0, 0, -1)},
	}

	got := FormatMemoryContext(memories, now, 10)
	want := "[MILESTONE, 3 days ago] first conversation\n" +
		"[EMOTION, 1 day ago] felt hurt\n" +
		"[CONVERSATION, today] talked about stars"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}

	// Input order is untouched.
	if memories[0].Content != "talked about stars" {
		t.Error("FormatMemoryContext must not reorder its input")
	}
}

func TestFormatMemoryContextCapsAtLimit(t *testing.T) {
	var memories []Memory
	for i := 0; i < 25; i++ {
		memories = append(memories, Memory{Type: MemoryEmotion, Content: "m", EmotionalWeight: float64(i) / 25, CreatedAt: base})
	}
	lines := strings.Split(FormatMemoryContext(memories, base, 10), "\n")
	if len(lines) != 10 {
		t.Errorf("expected 10 lines, got %d", len(lines))
	}
	if FormatMemoryContext(nil, base, 10) != "" {
		t.Error("expected empty context for no memories")
	}
}
