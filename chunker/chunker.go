// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package chunker

import "fmt"

const (
	// DefaultSize is the default target chunk size in characters.
	DefaultSize = 800
	// DefaultOverlap is the default number of characters shared between
	// consecutive chunks.
	DefaultOverlap = 100
	// DefaultBoundaryLookback bounds how far back from the raw cut point a
	// sentence or paragraph boundary is searched.
	DefaultBoundaryLookback = 100
)

// Piece is one segment produced by splitting a document. Start and End are
// character (rune) offsets into the original text, with End exclusive.
type Piece struct {
	Ordinal int
	Text    string
	Start   int
	End     int
}

// Chunker splits text into ordered, overlapping segments. It is a pure
// function of its configuration: the same text always yields the same pieces.
type Chunker struct {
	size             int
	overlap          int
	boundaryLookback int
}

// New creates a Chunker. size must be positive and overlap must be
// non-negative and smaller than size, otherwise every window would re-cover
// the previous one and splitting could not make progress.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d for size %d", ErrInvalidOverlap, overlap, size)
	}

	lookback := DefaultBoundaryLookback
	if lookback >= size {
		lookback = size / 2
	}

	return &Chunker{
		size:             size,
		overlap:          overlap,
		boundaryLookback: lookback,
	}, nil
}

// Size returns the configured target chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split slides a window of the target size across the text. A window ending
// mid-text is pulled back to the nearest sentence boundary (". " or a
// paragraph break) within the boundary lookback; if none is found the raw cut
// point is used. The next window starts overlap characters before the previous
// window's end.
//
// Text shorter than the target size yields exactly one piece. Empty text
// yields zero pieces and no error; the caller decides whether that is worth a
// warning. Ordinals are 0-based and contiguous.
func (c *Chunker) Split(text string) []Piece {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)

	var pieces []Piece
	start := 0
	for {
		end := start + c.size
		if end >= total {
			end = total
		} else {
			end = c.adjustToBoundary(runes, start, end)
		}

		pieces = append(pieces, Piece{
			Ordinal: len(pieces),
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
		})

		if end >= total {
			break
		}

		next := end - c.overlap
		if next <= start {
			// Overlap would re-cover the whole previous window; step past it
			// to guarantee progress.
			next = end
		}
		start = next
	}

	return pieces
}

// adjustToBoundary pulls a raw cut point back to the end of the nearest
// sentence or paragraph within the lookback bound. The returned end always
// stays strictly inside (start, rawEnd].
func (c *Chunker) adjustToBoundary(runes []rune, start, rawEnd int) int {
	limit := rawEnd - c.boundaryLookback
	if limit < start+1 {
		limit = start + 1
	}

	for end := rawEnd; end >= limit; end-- {
		if end < 2 {
			break
		}
		// Paragraph break
		if runes[end-1] == '\n' && runes[end-2] == '\n' {
			return end
		}
		// Sentence boundary ". "
		if runes[end-1] == ' ' && runes[end-2] == '.' {
			return end
		}
	}

	return rawEnd
}
