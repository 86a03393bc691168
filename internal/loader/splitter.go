package loader

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// SentenceSplitter packs whole sentences into chunks of at most ChunkSize
// whitespace-separated tokens. Trailing sentences worth up to ChunkOverlap
// tokens are repeated at the start of the next chunk.
type SentenceSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewSentenceSplitter validates the sizes and returns a splitter.
func NewSentenceSplitter(size, overlap int) (*SentenceSplitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &SentenceSplitter{ChunkSize: size, ChunkOverlap: overlap}, nil
}

// DefaultSplitter returns a 1000/200 splitter.
func DefaultSplitter() *SentenceSplitter {
	return &SentenceSplitter{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

type sentence struct {
	text   string
	tokens int
}

// Split returns the chunks of text in document order. Blank text gives no
// chunks.
func (s *SentenceSplitter) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks  []string
		cur     []sentence
		curToks int
		fresh   bool
	)

	flush := func() {
		if !fresh {
			return
		}
		parts := make([]string, len(cur))
		for i, st := range cur {
			parts[i] = st.text
		}
		chunks = append(chunks, strings.Join(parts, " "))
		fresh = false

		// Carry the tail into the next chunk.
		keep := 0
		toks := 0
		for i := len(cur) - 1; i >= 0; i-- {
			if toks+cur[i].tokens > s.ChunkOverlap {
				break
			}
			toks += cur[i].tokens
			keep++
		}
		cur = append([]sentence(nil), cur[len(cur)-keep:]...)
		curToks = toks
	}

	for _, st := range sentences {
		if st.tokens > s.ChunkSize {
			flush()
			cur, curToks = nil, 0
			chunks = append(chunks, s.hardSplit(st.text)...)
			continue
		}
		if curToks+st.tokens > s.ChunkSize {
			flush()
			for len(cur) > 0 && curToks+st.tokens > s.ChunkSize {
				curToks -= cur[0].tokens
				cur = cur[1:]
			}
		}
		cur = append(cur, st)
		curToks += st.tokens
		fresh = true
	}
	flush()

	return chunks
}

// hardSplit cuts one oversized sentence into ChunkSize-token windows that
// overlap by ChunkOverlap tokens.
func (s *SentenceSplitter) hardSplit(text string) []string {
	words := strings.Fields(text)
	step := s.ChunkSize - s.ChunkOverlap
	if step <= 0 {
		step = s.ChunkSize
	}

	var out []string
	for start := 0; start < len(words); start += step {
		end := start + s.ChunkSize
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

// splitSentences finds sentences ending in . ! or ? and keeps any trailing
// text without terminal punctuation as a last sentence. Whitespace inside a
// sentence is collapsed.
func splitSentences(text string) []sentence {
	var out []sentence
	add := func(raw string) {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			return
		}
		out = append(out, sentence{text: strings.Join(fields, " "), tokens: len(fields)})
	}

	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		add(text[loc[0]:loc[1]])
		last = loc[1]
	}
	add(text[last:])
	return out
}
