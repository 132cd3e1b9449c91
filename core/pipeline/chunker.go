package pipeline

import (
	"fmt"
	"strings"

	"github.com/siherrmann/converse/model"
)

// Fragment is one chunk span produced by a chunker. Start and End are byte
// offsets into the source text, Start < End, and Text == source[Start:End].
type Fragment struct {
	Text  string
	Start int
	End   int
}

// ChunkFunc is a function that splits text into ordered fragments. Removing
// overlapping spans, the fragments of any ChunkFunc reconstruct the source
// text exactly.
type ChunkFunc func(text string) ([]Fragment, error)

// NewChunker builds a chunker from a configuration. Unknown methods and bad
// parameters are rejected here, at configuration time, never mid-ingestion.
func NewChunker(config model.ChunkingConfig) (ChunkFunc, error) {
	switch config.Method {
	case model.ChunkingFixedSize:
		return FixedSizeChunker(config.ChunkSize, config.Overlap)
	case model.ChunkingRecursiveCharacter:
		return RecursiveCharacterChunker(config.Separators, config.MaxChunkSize, config.MinChunkSize)
	default:
		return nil, fmt.Errorf("%w: unknown chunking method %q", model.ErrInvalidConfig, config.Method)
	}
}

// FixedSizeChunker creates a chunker that slides a window of chunkSize over
// the text, advancing by chunkSize-overlap. The final window may be shorter
// than chunkSize.
func FixedSizeChunker(chunkSize, overlap int) (ChunkFunc, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", model.ErrInvalidConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, chunk size), got %d", model.ErrInvalidConfig, overlap)
	}

	stride := chunkSize - overlap

	return func(text string) ([]Fragment, error) {
		if len(text) == 0 {
			return nil, nil
		}

		var fragments []Fragment
		for start := 0; start < len(text); start += stride {
			end := start + chunkSize
			if end > len(text) {
				end = len(text)
			}
			fragments = append(fragments, Fragment{
				Text:  text[start:end],
				Start: start,
				End:   end,
			})
			if end == len(text) {
				break
			}
		}

		return fragments, nil
	}, nil
}

// RecursiveCharacterChunker creates a chunker that splits at an ordered list
// of separators (paragraph, line, word by default) until each fragment fits
// maxChunkSize. Adjacent fragments below minChunkSize are merged with their
// neighbors. A fragment no separator can reduce (one unbroken token) is
// emitted as-is; that is the only case where maxChunkSize is exceeded.
func RecursiveCharacterChunker(separators []string, maxChunkSize, minChunkSize int) (ChunkFunc, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("%w: max chunk size must be positive, got %d", model.ErrInvalidConfig, maxChunkSize)
	}
	if minChunkSize < 0 || minChunkSize > maxChunkSize {
		return nil, fmt.Errorf("%w: min chunk size must be in [0, max chunk size], got %d", model.ErrInvalidConfig, minChunkSize)
	}
	if separators == nil {
		separators = model.DefaultSeparators()
	}
	for i, sep := range separators {
		// The empty separator marks indivisibility and may only close the list.
		if sep == "" && i != len(separators)-1 {
			return nil, fmt.Errorf("%w: empty separator must be last", model.ErrInvalidConfig)
		}
	}

	return func(text string) ([]Fragment, error) {
		if len(text) == 0 {
			return nil, nil
		}
		fragments := splitRecursive(text, 0, separators, maxChunkSize)
		return mergeSmallFragments(fragments, minChunkSize, maxChunkSize), nil
	}, nil
}

// splitRecursive splits text at the first separator and recurses with the
// remaining separators on fragments still above maxSize. Separators stay
// attached to the preceding fragment so spans remain contiguous.
func splitRecursive(text string, base int, separators []string, maxSize int) []Fragment {
	if len(text) <= maxSize {
		return []Fragment{{Text: text, Start: base, End: base + len(text)}}
	}
	if len(separators) == 0 || separators[0] == "" {
		// Indivisible fragment, emitted as-is.
		return []Fragment{{Text: text, Start: base, End: base + len(text)}}
	}

	sep := separators[0]
	pieces := splitKeepSeparator(text, sep)
	if len(pieces) == 1 {
		// Separator not present, try the next one.
		return splitRecursive(text, base, separators[1:], maxSize)
	}

	var fragments []Fragment
	offset := base
	for _, piece := range pieces {
		if len(piece) > maxSize {
			fragments = append(fragments, splitRecursive(piece, offset, separators[1:], maxSize)...)
		} else {
			fragments = append(fragments, Fragment{Text: piece, Start: offset, End: offset + len(piece)})
		}
		offset += len(piece)
	}

	return fragments
}

// splitKeepSeparator splits text at sep, keeping the separator at the end of
// the preceding piece. The concatenation of all pieces is the input.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			pieces = append(pieces, part+sep)
		} else if part != "" {
			pieces = append(pieces, part)
		}
	}
	if len(pieces) == 0 {
		pieces = []string{text}
	}
	return pieces
}

// mergeSmallFragments merges adjacent fragments below minSize with their
// neighbors, as long as the merge stays within maxSize. Fragments are
// contiguous, so merging concatenates spans.
func mergeSmallFragments(fragments []Fragment, minSize, maxSize int) []Fragment {
	if minSize <= 0 || len(fragments) < 2 {
		return fragments
	}

	var merged []Fragment
	for _, fragment := range fragments {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			small := len(fragment.Text) < minSize || len(last.Text) < minSize
			if small && len(last.Text)+len(fragment.Text) <= maxSize {
				last.Text += fragment.Text
				last.End = fragment.End
				continue
			}
		}
		merged = append(merged, fragment)
	}

	return merged
}
