package chunking

import "strings"

const (
	DefaultWindowWords  = 512
	DefaultOverlapWords = 50
)

// Window is one embedding-sized slice of a module, as word indices.
type Window struct {
	Text      string
	StartWord int
	EndWord   int
}

func (w Window) WordCount() int { return w.EndWord - w.StartWord }

// Split cuts text into overlapping word windows. Every window starts after
// the previous one and the last window ends at the final word.
func Split(text string, size, overlap int) []Window {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultWindowWords
	}
	if overlap < 0 {
		overlap = 0
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	out := make([]Window, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, Window{
			Text:      strings.Join(words[start:end], " "),
			StartWord: start,
			EndWord:   end,
		})
		if end == len(words) {
			break
		}
	}
	return out
}
