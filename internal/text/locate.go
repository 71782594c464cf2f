package text

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

var ErrLocationNotFound = errors.New("no similar content found in original text")

// Span is a byte range inside the original content. Invariant:
// 0 <= From < To <= len(original).
type Span struct {
	From         int  `json:"from"`
	To           int  `json:"to"`
	Approximated bool `json:"approximated"`
}

// DefaultOverlapWords is the word budget used to bound the sliding-window
// stride during approximate relocation.
const DefaultOverlapWords = 10

// Locate computes where chunk sits inside original. An exact substring match
// wins; otherwise the chunk is relocated approximately. Chunking normally
// produces exact substrings, so the fallback only fires when the source was
// reformatted between ingestions.
func Locate(original, chunk string) (Span, error) {
	return LocateOverlap(original, chunk, DefaultOverlapWords)
}

func LocateOverlap(original, chunk string, overlapWords int) (Span, error) {
	if chunk == "" {
		return Span{}, fmt.Errorf("%w: empty chunk", ErrLocationNotFound)
	}
	if i := strings.Index(original, chunk); i >= 0 {
		return Span{From: i, To: i + len(chunk)}, nil
	}
	return bestMatch(original, chunk, overlapWords)
}

// bestMatch slides a window of len(chunk) across original and keeps the
// window with the highest bigram similarity to chunk. The stride is the
// window length minus an overlap budget expressed in average-length words,
// which keeps the scan linear while every expected chunk position stays
// reachable.
func bestMatch(original, chunk string, overlapWords int) (Span, error) {
	if len(original) < len(chunk) {
		return Span{}, fmt.Errorf("%w: original shorter than chunk (%d < %d)", ErrLocationNotFound, len(original), len(chunk))
	}

	words := strings.Fields(original)
	if len(words) == 0 {
		return Span{}, fmt.Errorf("%w: original contains no words", ErrLocationNotFound)
	}
	averageWordLength := float64(len(original)) / float64(len(words))
	overlap := int(float64(overlapWords) * averageWordLength)

	stride := len(chunk) - overlap
	if stride < 1 {
		stride = 1
	}

	dice := metrics.NewSorensenDice()
	dice.NgramSize = 2

	bestScore := 0.0
	bestStart := -1
	for i := 0; i+len(chunk) <= len(original); i += stride {
		candidate := original[i : i+len(chunk)]
		if score := strutil.Similarity(candidate, chunk, dice); score > bestScore {
			bestScore = score
			bestStart = i
		}
	}

	// A zero best score means nothing resembling the chunk was scanned;
	// returning the first window anyway would fabricate a location.
	if bestStart < 0 {
		return Span{}, fmt.Errorf("%w: no window scored above zero", ErrLocationNotFound)
	}

	return Span{From: bestStart, To: bestStart + len(chunk), Approximated: true}, nil
}
