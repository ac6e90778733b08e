package service

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

var ErrInvalidSplitter = errors.New("invalid splitter parameters")

// TextSplitter cuts text into fixed-size windows that overlap by a fixed
// number of characters. Sizes are counted in runes.
type TextSplitter struct {
	chunkSize int
	overlap   int
}

func NewTextSplitter(chunkSize, overlap int) (*TextSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidSplitter, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidSplitter, chunkSize, overlap)
	}
	return &TextSplitter{chunkSize: chunkSize, overlap: overlap}, nil
}

func (s *TextSplitter) ChunkSize() int { return s.chunkSize }
func (s *TextSplitter) Overlap() int   { return s.overlap }

// Chunks yields the windows of text in order. Windows that hold only
// whitespace are skipped. Each call starts a fresh walk over text.
func (s *TextSplitter) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		if len(runes) <= s.chunkSize {
			if strings.TrimSpace(text) != "" {
				yield(text)
			}
			return
		}

		step := s.chunkSize - s.overlap
		for start := 0; ; start += step {
			end := min(start+s.chunkSize, len(runes))
			chunk := string(runes[start:end])
			if strings.TrimSpace(chunk) != "" {
				if !yield(chunk) {
					return
				}
			}
			if end == len(runes) {
				return
			}
		}
	}
}

// Split collects Chunks into a slice.
func (s *TextSplitter) Split(text string) []string {
	var chunks []string
	for chunk := range s.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}
