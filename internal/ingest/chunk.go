package ingest

import (
	"regexp"
	"strings"
)

// sentenceRe captures one sentence: text up to terminal punctuation, keeping
// trailing quotes and brackets attached, or a final unterminated fragment.
var sentenceRe = regexp.MustCompile(`[^.!?]+(?:[.!?]+["')\]]*|$)`)

// chunkText splits text into chunks of at most size characters on sentence
// boundaries. Consecutive chunks share up to overlap characters of trailing
// sentences so context survives the cut. A single sentence longer than size
// stays whole.
func chunkText(text string, size, overlap int) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	length := 0
	for _, sentence := range sentences {
		added := len(sentence)
		if length > 0 {
			added++ // joining space
		}
		if length > 0 && length+added > size {
			chunks = append(chunks, strings.Join(current, " "))
			current, length = overlapTail(current, overlap)
			added = len(sentence)
			if length > 0 {
				added++
			}
		}
		current = append(current, sentence)
		length += added
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// splitSentences normalizes whitespace and breaks text into sentences.
func splitSentences(text string) []string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return nil
	}
	matches := sentenceRe.FindAllString(normalized, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// overlapTail returns the trailing sentences of a flushed chunk that fit the
// overlap budget, so the next chunk opens with shared context.
func overlapTail(sentences []string, overlap int) ([]string, int) {
	if overlap <= 0 {
		return nil, 0
	}
	length := 0
	start := len(sentences)
	for start > 0 {
		add := len(sentences[start-1])
		if length > 0 {
			add++
		}
		if length+add > overlap {
			break
		}
		length += add
		start--
	}
	if start == len(sentences) {
		return nil, 0
	}
	tail := append([]string(nil), sentences[start:]...)
	return tail, length
}
