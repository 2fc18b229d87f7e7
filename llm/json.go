package llm

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// extractJSON implements spec.md §4.4's tolerant JSON extraction: strip
// markdown fences, locate the outer {...}, and repair common truncations.
// Returns the extracted object text, or "" if nothing usable was found.
func extractJSON(raw string) string {
	if body := fencedCodeBody(raw); body != "" {
		raw = body
	}

	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	candidate := raw[start:]

	if json.Valid([]byte(candidate)) {
		return candidate
	}

	repaired := repairTruncatedJSON(candidate)
	if json.Valid([]byte(repaired)) {
		return repaired
	}
	return ""
}

// fencedCodeBody returns the text of the first fenced code block in md, if
// any, using goldmark to parse the markdown structure rather than
// regexing for ``` delimiters.
func fencedCodeBody(md string) string {
	source := []byte(md)
	reader := text.NewReader(source)
	doc := goldmark.New().Parser().Parse(reader)

	var found string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || found != "" {
			return ast.WalkContinue, nil
		}
		if block, ok := n.(*ast.FencedCodeBlock); ok {
			var buf bytes.Buffer
			for i := 0; i < block.Lines().Len(); i++ {
				line := block.Lines().At(i)
				buf.Write(line.Value(source))
			}
			found = buf.String()
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

// repairTruncatedJSON attempts to fix a common class of truncated LLM JSON
// output: trims trailing garbage after the last comma or quote, then
// appends closing braces/brackets to balance whatever opened.
func repairTruncatedJSON(s string) string {
	s = strings.TrimSpace(s)

	if lastBrace := strings.LastIndexByte(s, '}'); lastBrace >= 0 {
		trimmed := s[:lastBrace+1]
		if json.Valid([]byte(trimmed)) {
			return trimmed
		}
	}

	if lastComma := strings.LastIndexByte(s, ','); lastComma > 0 {
		s = s[:lastComma]
	} else if lastQuote := strings.LastIndexByte(s, '"'); lastQuote > 0 {
		s = s[:lastQuote+1]
	}

	depthCurly, depthSquare := 0, 0
	inString, escape := false, false
	for _, ch := range s {
		if escape {
			escape = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
			// inside a string literal, brackets don't count
		case ch == '{':
			depthCurly++
		case ch == '}':
			depthCurly--
		case ch == '[':
			depthSquare++
		case ch == ']':
			depthSquare--
		}
	}

	var closing strings.Builder
	for i := 0; i < depthSquare; i++ {
		closing.WriteByte(']')
	}
	for i := 0; i < depthCurly; i++ {
		closing.WriteByte('}')
	}
	return s + closing.String()
}
