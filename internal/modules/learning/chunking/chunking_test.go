package chunking

import (
	"fmt"
	"strings"
	"testing"
)

func text(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("t%d", i)
	}
	return strings.Join(parts, "  ")
}

func TestSplitDefaults(t *testing.T) {
	got := Split(text(1100), DefaultWindowWords, DefaultOverlapWords)
	// starts: 0, 462, 924
	if len(got) != 3 {
		t.Fatalf("windows: want=3 got=%d", len(got))
	}
	if got[1].StartWord != 462 || got[2].StartWord != 924 {
		t.Fatalf("starts: %d %d", got[1].StartWord, got[2].StartWord)
	}
	if got[2].EndWord != 1100 || got[2].WordCount() != 176 {
		t.Fatalf("last window: %+v", got[2])
	}
	if !strings.HasPrefix(got[1].Text, "t462 t463") {
		t.Fatalf("text not normalized: %q", got[1].Text[:20])
	}
}

func TestSplitProgressAndCoverage(t *testing.T) {
	cases := []struct{ n, size, overlap int }{
		{1, 512, 50},
		{512, 512, 50},
		{513, 512, 50},
		{2000, 10, 9},
		{50, 10, 10},
		{50, 10, 40},
		{30, 0, -1},
	}
	for _, c := range cases {
		ws := Split(text(c.n), c.size, c.overlap)
		if len(ws) == 0 {
			t.Fatalf("%+v: no windows", c)
		}
		if ws[0].StartWord != 0 || ws[len(ws)-1].EndWord != c.n {
			t.Fatalf("%+v: windows do not span text", c)
		}
		for i := 1; i < len(ws); i++ {
			if ws[i].StartWord <= ws[i-1].StartWord {
				t.Fatalf("%+v: window %d does not advance", c, i)
			}
			if ws[i].StartWord > ws[i-1].EndWord {
				t.Fatalf("%+v: gap before window %d", c, i)
			}
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	if got := Split(" \n ", 512, 50); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
