package mirror

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gaspardpetit/findx/internal/chunk"
	"github.com/gaspardpetit/findx/internal/events"
	"github.com/gaspardpetit/findx/internal/hashing"
)

// tokensPerChunk is the target chunk size in whitespace-separated words.
const tokensPerChunk = 200

// PageSpan is one page represented within a chunk's character range.
type PageSpan struct {
	Page      int `json:"page"`
	StartChar int `json:"start_char"`
	EndChar   int `json:"end_char"`
}

// ByteSpan records character offsets within the concatenated document. The
// name is preserved from the on-disk schema; these are Unicode-scalar
// offsets, not byte offsets.
type ByteSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk is one line of chunks.jsonl.
type Chunk struct {
	V           int        `json:"v"`
	ChunkID     string     `json:"chunk_id"`
	FileUID     string     `json:"file_uid"`
	ContentHash string     `json:"content_hash"`
	Order       int        `json:"order"`
	Text        string     `json:"text"`
	PageSpans   []PageSpan `json:"page_spans"`
	ByteSpan    ByteSpan   `json:"byte_span"`
	TokensEst   int        `json:"tokens_est"`
}

// chunkPages splits every page into ~200-token chunks that never cross a
// page boundary, and assigns each chunk a deterministic chunk_id. When
// codeAware is set and ext maps to a tree-sitter grammar, each chunk end
// is moved to a top-level declaration end chosen by snapToBoundary, which
// can shorten or lengthen the chunk. When no declaration end qualifies,
// the token-counted end is kept, so a function or class body can then be
// split across chunks. The chunk_id formula is the same in both modes.
func chunkPages(pages []events.PageBlock, fileUID string, contentHashHex string, contentHashU64 uint64, ext string, codeAware bool) []Chunk {
	var chunks []Chunk
	order := 0

	for _, page := range pages {
		runes := []rune(page.Text)
		var boundaries []int
		if codeAware {
			boundaries = codeBoundaries(page.Text, ext)
		}

		idx := 0
		for idx < len(runes) {
			end := advanceChunk(runes, idx)
			if boundaries != nil {
				end = snapToBoundary(idx, end, boundaries)
			}
			text := string(runes[idx:end])

			chunkID := hashing.ChunkID(fileUID, contentHashU64, uint32(page.PageNo), page.Start+idx, page.Start+end, text)

			chunks = append(chunks, Chunk{
				V:           1,
				ChunkID:     chunkID,
				FileUID:     fileUID,
				ContentHash: contentHashHex,
				Order:       order,
				Text:        text,
				PageSpans:   []PageSpan{{Page: page.PageNo, StartChar: idx, EndChar: end}},
				ByteSpan:    ByteSpan{Start: page.Start + idx, End: page.Start + end},
				TokensEst:   wordCount(text),
			})
			order++
			idx = end
		}
	}
	return chunks
}

// advanceChunk grows end from idx counting whitespace runs as token
// boundaries until either the page ends or tokensPerChunk tokens have
// been counted.
func advanceChunk(runes []rune, idx int) int {
	end := idx
	tokens := 0
	inWhitespace := false

	for end < len(runes) && tokens < tokensPerChunk {
		r := runes[end]
		if isWhitespace(r) {
			if !inWhitespace {
				tokens++
				inWhitespace = true
			}
		} else {
			inWhitespace = false
		}
		end++
	}
	return end
}

// snapToBoundary returns the last declaration-end boundary b (boundaries
// are sorted ascending) with idx < b <= end+tokensPerChunk, or end
// unchanged if none qualifies. tokensPerChunk is added here as a rune
// count, and the chosen boundary may lie before end.
func snapToBoundary(idx, end int, boundaries []int) int {
	best := -1
	for _, b := range boundaries {
		if b <= idx {
			continue
		}
		if b > end+tokensPerChunk {
			break
		}
		best = b
	}
	if best == -1 {
		return end
	}
	return best
}

// codeBoundaries runs tree-sitter over pageText, when ext maps to a
// registered language, and converts the resulting declaration end-byte
// offsets into rune offsets within pageText for snapToBoundary to use.
func codeBoundaries(pageText, ext string) []int {
	byteOffsets, ok := chunk.Boundaries(context.Background(), []byte(pageText), ext)
	if !ok {
		return nil
	}

	runeOffsets := make([]int, 0, len(byteOffsets))
	for _, b := range byteOffsets {
		if b < 0 || b > len(pageText) {
			continue
		}
		runeOffsets = append(runeOffsets, utf8.RuneCountInString(pageText[:b]))
	}
	return runeOffsets
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
