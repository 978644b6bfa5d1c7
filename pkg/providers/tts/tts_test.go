package tts

import (
	"strings"
	"testing"
)

func TestSplitTextShortTextNotSplit(t *testing.T) {
	chunks := SplitText("hello world", 2000)
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Fatalf("expected single unmodified chunk, got %v", chunks)
	}
}

func TestSplitTextSplitsAtSentenceBoundary(t *testing.T) {
	text := "First sentence. Second sentence. " + string(make([]byte, 10))
	chunks := SplitText(text, 20)
	for _, c := range chunks {
		if len(c) > 20 {
			t.Fatalf("chunk exceeds max length: %q (%d)", c, len(c))
		}
	}
	if strings.TrimSpace(chunks[0]) != "First sentence." {
		t.Fatalf("expected split at sentence boundary, got %q", chunks[0])
	}
}

func TestSplitTextFallsBackToHardSplit(t *testing.T) {
	text := strings.Repeat("A", 3000)
	chunks := SplitText(text, 2000)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 2000 || len(chunks[1]) != 1000 {
		t.Fatalf("expected 2000/1000 split, got %d/%d", len(chunks[0]), len(chunks[1]))
	}
}

