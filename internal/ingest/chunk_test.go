package ingest

import (
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Hello there. How are you? Fine! Said \"done.\" Trailing fragment")
	want := []string{
		"Hello there.",
		"How are you?",
		"Fine!",
		"Said \"done.\"",
		"Trailing fragment",
	}
	if len(got) != len(want) {
		t.Fatalf("splitSentences returned %d sentences, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitSentencesNormalizesWhitespace(t *testing.T) {
	got := splitSentences("One  sentence.\n\n  Spread over\tlines.")
	if len(got) != 2 {
		t.Fatalf("got %d sentences, want 2: %q", len(got), got)
	}
	if got[1] != "Spread over lines." {
		t.Errorf("second sentence = %q", got[1])
	}
}

func TestChunkTextPacksSentencesUpToSize(t *testing.T) {
	s1 := strings.Repeat("a", 19) + "."
	s2 := strings.Repeat("b", 19) + "."
	s3 := strings.Repeat("c", 19) + "."
	chunks := chunkText(s1+" "+s2+" "+s3, 45, 0)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %q", len(chunks), chunks)
	}
	if chunks[0] != s1+" "+s2 {
		t.Errorf("chunk 0 = %q", chunks[0])
	}
	if chunks[1] != s3 {
		t.Errorf("chunk 1 = %q", chunks[1])
	}
}

func TestChunkTextOverlapRepeatsTrailingSentence(t *testing.T) {
	s1 := strings.Repeat("a", 19) + "."
	s2 := strings.Repeat("b", 19) + "."
	s3 := strings.Repeat("c", 19) + "."
	chunks := chunkText(s1+" "+s2+" "+s3, 45, 25)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %q", len(chunks), chunks)
	}
	if chunks[1] != s2+" "+s3 {
		t.Errorf("chunk 1 = %q, want overlap sentence carried over", chunks[1])
	}
}

func TestChunkTextKeepsOversizeSentenceWhole(t *testing.T) {
	long := strings.Repeat("x", 100) + "."
	chunks := chunkText(long, 50, 10)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != long {
		t.Errorf("oversize sentence was split: %q", chunks[0])
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	if chunks := chunkText("   \n\t ", 800, 100); len(chunks) != 0 {
		t.Fatalf("expected no chunks for blank input, got %q", chunks)
	}
}

func TestChunkTextAllSentencesSurvive(t *testing.T) {
	var parts []string
	for i := 0; i < 12; i++ {
		parts = append(parts, strings.Repeat(string(rune('a'+i)), 30)+".")
	}
	chunks := chunkText(strings.Join(parts, " "), 100, 20)
	joined := strings.Join(chunks, " ")
	for _, p := range parts {
		if !strings.Contains(joined, p) {
			t.Errorf("sentence %q missing from chunks", p)
		}
	}
}
