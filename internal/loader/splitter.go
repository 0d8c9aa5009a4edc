package loader

import (
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"ragkit/internal/schema"
	ragerrors "ragkit/pkg/errors"
)

var sentenceEnd = regexp.MustCompile(`[.!?。！？]+["')\]]*\s+|\n\s*\n`)

// SentenceSplitter chunks text on sentence boundaries. Sizes are counted in
// words.
type SentenceSplitter struct {
	chunkSize    int
	chunkOverlap int
}

func NewSentenceSplitter(chunkSize, chunkOverlap int) (*SentenceSplitter, error) {
	if chunkSize <= 0 {
		return nil, ragerrors.Validation("chunk_size", "must be positive")
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, ragerrors.Validation("chunk_overlap", fmt.Sprintf("must be in [0, %d)", chunkSize))
	}
	return &SentenceSplitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// NodeID derives a stable node ID from its document and position.
func NodeID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", docID, index))).String()
}

// Split chunks doc into nodes. Each node copies the document metadata and
// records the document ID.
func (s *SentenceSplitter) Split(doc schema.Document) []schema.Node {
	chunks := s.SplitText(doc.Text)
	nodes := make([]schema.Node, 0, len(chunks))
	for i, chunk := range chunks {
		meta := make(map[string]any, len(doc.Metadata)+1)
		maps.Copy(meta, doc.Metadata)
		meta[schema.MetaDocID] = doc.ID
		nodes = append(nodes, schema.Node{
			ID:       NodeID(doc.ID, i),
			DocID:    doc.ID,
			Text:     chunk,
			Metadata: meta,
		})
	}
	return nodes
}

// SplitDocuments splits every document in order.
func (s *SentenceSplitter) SplitDocuments(docs []schema.Document) []schema.Node {
	var nodes []schema.Node
	for _, doc := range docs {
		nodes = append(nodes, s.Split(doc)...)
	}
	return nodes
}

// SplitText returns chunks of at most chunkSize words. Consecutive chunks
// share up to chunkOverlap trailing words of whole sentences.
func (s *SentenceSplitter) SplitText(text string) []string {
	var sentences [][]string
	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)
		for len(words) > s.chunkSize {
			sentences = append(sentences, words[:s.chunkSize])
			words = words[s.chunkSize:]
		}
		if len(words) > 0 {
			sentences = append(sentences, words)
		}
	}

	var (
		chunks  []string
		current [][]string
		size    int
		pending bool
	)
	flush := func() {
		parts := make([]string, len(current))
		for i, words := range current {
			parts[i] = strings.Join(words, " ")
		}
		chunks = append(chunks, strings.Join(parts, " "))

		// keep whole trailing sentences that fit in the overlap
		var keep [][]string
		kept := 0
		for i := len(current) - 1; i >= 0; i-- {
			if kept+len(current[i]) > s.chunkOverlap {
				break
			}
			kept += len(current[i])
			keep = append([][]string{current[i]}, keep...)
		}
		current, size, pending = keep, kept, false
	}

	for _, words := range sentences {
		if pending && size+len(words) > s.chunkSize {
			flush()
			// overlap alone may still not leave room
			for len(current) > 0 && size+len(words) > s.chunkSize {
				size -= len(current[0])
				current = current[1:]
			}
		}
		current = append(current, words)
		size += len(words)
		pending = true
	}
	if pending {
		flush()
	}
	return chunks
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if sentence := strings.TrimSpace(text[last:loc[1]]); sentence != "" {
			out = append(out, sentence)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}
