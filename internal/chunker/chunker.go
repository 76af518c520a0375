package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"document-chat/internal/models"
)

const (
	DefaultChunkSize    = 500 // characters
	DefaultChunkOverlap = 100 // characters
)

// DefaultSeparators are tried in order. The empty separator splits into characters.
// Paragraph and line breaks come first so table rows stay together.
var DefaultSeparators = []string{"\n\n", "\n", ". ", ", ", " ", ""}

var _ textsplitter.TextSplitter = (*Recursive)(nil)

// Recursive splits text on a prioritized separator list into overlapping passages.
type Recursive struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// New returns a Recursive splitter. Invalid sizes fall back to the defaults and an
// overlap that does not fit in a chunk is reduced to half the chunk size.
func New(chunkSize, chunkOverlap int) *Recursive {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Recursive{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Separators:   DefaultSeparators,
	}
}

// SplitText splits one text into passage contents.
func (r *Recursive) SplitText(text string) ([]string, error) {
	return r.split(text), nil
}

// Split chunks every unit of one document. Chunk ids run across units in order;
// overlap never crosses a unit boundary.
func (r *Recursive) Split(units []models.TextUnit) []models.Passage {
	var passages []models.Passage
	chunkID := 0
	for _, unit := range units {
		for _, content := range r.split(unit.Content) {
			chunkID++
			passages = append(passages, models.Passage{
				ID:          uuid.NewString(),
				Content:     content,
				Source:      unit.Source,
				ContentType: unit.ContentType,
				PageNumber:  unit.PageNumber,
				ChunkID:     chunkID,
			})
		}
	}
	return passages
}

func (r *Recursive) split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if runeLen(text) <= r.ChunkSize {
		return []string{text}
	}

	// every piece must fit next to a full overlap prefix
	limit := r.ChunkSize - r.ChunkOverlap
	if limit < 1 {
		limit = 1
	}
	return r.merge(pieces(text, r.Separators, limit))
}

// merge packs pieces greedily into passages of at most ChunkSize characters.
// Each passage after the first starts with the tail of the previous one.
func (r *Recursive) merge(parts []string) []string {
	var (
		chunks    []string
		current   strings.Builder
		size      int
		prefixLen int
	)
	for _, part := range parts {
		n := runeLen(part)
		if size+n > r.ChunkSize && size > prefixLen {
			chunk := current.String()
			chunks = append(chunks, chunk)

			overlap := tail(chunk, r.ChunkOverlap)
			current.Reset()
			current.WriteString(overlap)
			size = runeLen(overlap)
			prefixLen = size
		}
		current.WriteString(part)
		size += n
	}
	if size > prefixLen {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// pieces cuts text on the first separator it contains and recurses with the
// remaining separators into any piece longer than limit.
func pieces(text string, separators []string, limit int) []string {
	if runeLen(text) <= limit {
		return []string{text}
	}

	sep, rest := "", []string(nil)
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, separators[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		splits = characters(text)
	} else {
		splits = strings.SplitAfter(text, sep)
	}

	var out []string
	for _, s := range splits {
		if s == "" {
			continue
		}
		if runeLen(s) <= limit {
			out = append(out, s)
			continue
		}
		out = append(out, pieces(s, rest, limit)...)
	}
	return out
}

func characters(text string) []string {
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// tail returns the last n characters of s, or s itself when it is shorter.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := runeLen(s)
	if count <= n {
		return s
	}
	skip := count - n
	for i := range s {
		if skip == 0 {
			return s[i:]
		}
		skip--
	}
	return ""
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Join rebuilds the text of consecutive chunks by dropping each overlap prefix.
func Join(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		prefix := min(overlap, runeLen(chunks[i-1]))
		b.WriteString(string([]rune(c)[prefix:]))
	}
	return b.String()
}
