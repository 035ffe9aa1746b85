package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is a run of document text under one heading.
type Section struct {
	Title string
	Text  string
}

var mdParser = goldmark.DefaultParser()

// MarkdownSections splits a markdown document at its headings. Text before
// the first heading has an empty title. Markup inside blocks is kept as
// written.
func MarkdownSections(src []byte) []Section {
	doc := mdParser.Parse(text.NewReader(src))

	var (
		out   []Section
		title string
		buf   strings.Builder
	)
	flush := func() {
		if t := strings.TrimSpace(buf.String()); t != "" {
			out = append(out, Section{Title: title, Text: t})
		}
		buf.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			flush()
			title = strings.TrimSpace(blockText(h, src))
			continue
		}
		_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			if c.Type() != ast.TypeBlock {
				return ast.WalkSkipChildren, nil
			}
			if c.Lines().Len() > 0 {
				buf.WriteString(blockText(c, src))
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		})
	}
	flush()
	return out
}

func blockText(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

// TextSections returns the whole document as one untitled section.
func TextSections(src []byte) []Section {
	if t := strings.TrimSpace(string(src)); t != "" {
		return []Section{{Text: t}}
	}
	return nil
}

type qaRecord struct {
	Question string `json:"question"`
	Context  string `json:"context"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

// QASections reads a JSON-lines question/answer dataset. Each record becomes
// one section titled with its question; blank and malformed lines are
// skipped and counted.
func QASections(src []byte) ([]Section, int) {
	var (
		out     []Section
		skipped int
	)
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r qaRecord
		if err := json.Unmarshal(line, &r); err != nil || strings.TrimSpace(r.Question) == "" {
			skipped++
			continue
		}
		parts := []string{r.Question}
		if r.Context != "" {
			parts = append(parts, r.Context)
		}
		if r.Answer != "" {
			parts = append(parts, r.Answer)
		}
		title := r.Question
		if r.Category != "" {
			title = fmt.Sprintf("%s: %s", r.Category, r.Question)
		}
		out = append(out, Section{Title: title, Text: strings.Join(parts, "\n")})
	}
	return out, skipped
}

// Chunk splits s into pieces at word boundaries. A piece is closed as soon
// as it reaches size characters, so pieces may overrun size by one word.
// Whitespace inside a piece is collapsed to single spaces.
func Chunk(s string, size int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var (
		chunks  []string
		current []string
		length  int
	)
	for _, w := range words {
		current = append(current, w)
		length += len([]rune(w)) + 1
		if length >= size {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			length = 0
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
