package extract

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Anchor describes a recurring counterparty whose documents defeat the
// label-based supplier rules, typically a letterhead with no "Поставщик:"
// label. Anchors are matched in table order near the top of the document.
type Anchor struct {
	// Match is the literal substring that identifies the counterparty,
	// e.g. "Группа компаний". Matching is case-insensitive.
	Match string `yaml:"match"`
	// Name, when set, replaces whatever text follows the anchor.
	Name string `yaml:"name"`
	// Take is "line" (anchor through the end of the name on that line) or
	// "words" (anchor plus Words following words). Default "line".
	Take  string `yaml:"take"`
	Words int    `yaml:"words"`
	// CodePrefix allows a slash-delimited numeric code before the anchor
	// ("0417/ Группа компаний ..."); the code is dropped.
	CodePrefix bool `yaml:"code_prefix"`
	// Window is how many leading non-empty lines are searched. Default 15.
	Window int `yaml:"window"`
	// INN is used for the supplier when none is printed near the anchor.
	INN string `yaml:"inn"`
}

type anchorFile struct {
	Anchors []Anchor `yaml:"anchors"`
}

// DefaultAnchors is the built-in table used when no file is configured.
func DefaultAnchors() []Anchor {
	return []Anchor{
		{Match: "Группа компаний", Take: "line", CodePrefix: true, Window: 15},
		{Match: "Group of companies", Take: "line", CodePrefix: true, Window: 15},
	}
}

// LoadAnchors reads an anchor table from a YAML file of the form
//
//	anchors:
//	  - match: "Группа компаний"
//	    take: line
//	    code_prefix: true
func LoadAnchors(path string) ([]Anchor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read anchors %s: %w", path, err)
	}
	return ParseAnchors(data)
}

// ParseAnchors decodes and validates a YAML anchor table.
func ParseAnchors(data []byte) ([]Anchor, error) {
	var f anchorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse anchors: %w", err)
	}
	for i, a := range f.Anchors {
		if strings.TrimSpace(a.Match) == "" {
			return nil, fmt.Errorf("anchor %d: match is required", i)
		}
		switch a.Take {
		case "", "line", "words":
		default:
			return nil, fmt.Errorf("anchor %d (%s): unknown take %q", i, a.Match, a.Take)
		}
		if a.Take == "words" && a.Words <= 0 {
			return nil, fmt.Errorf("anchor %d (%s): words must be positive", i, a.Match)
		}
	}
	return f.Anchors, nil
}

type compiledAnchor struct {
	Anchor
	re *regexp.Regexp
}

func compileAnchors(anchors []Anchor) []compiledAnchor {
	out := make([]compiledAnchor, 0, len(anchors))
	for _, a := range anchors {
		if a.Window <= 0 {
			a.Window = 15
		}
		pattern := `(?i)`
		if a.CodePrefix {
			pattern += `(?:\d+\s*/\s*)?`
		}
		pattern += `(` + regexp.QuoteMeta(strings.TrimSpace(a.Match)) + `[^\n\t]*)`
		out = append(out, compiledAnchor{Anchor: a, re: regexp.MustCompile(pattern)})
	}
	return out
}

// anchorHit is a successful anchor match: the supplier name and the byte
// offsets of the matched text within the document.
type anchorHit struct {
	anchor     compiledAnchor
	name       string
	start, end int
}

func (e *Extractor) matchAnchor(text string) (anchorHit, bool) {
	for _, a := range e.anchors {
		limit := windowEnd(text, a.Window)
		loc := a.re.FindStringSubmatchIndex(text[:limit])
		if loc == nil {
			continue
		}
		matched := text[loc[2]:loc[3]]
		name := a.Name
		if name == "" {
			name = anchorName(a.Anchor, matched)
		}
		if name == "" {
			continue
		}
		return anchorHit{anchor: a, name: name, start: loc[0], end: loc[1]}, true
	}
	return anchorHit{}, false
}

func anchorName(a Anchor, matched string) string {
	if a.Take == "words" {
		anchorWords := len(strings.Fields(a.Match))
		words := strings.Fields(matched)
		if n := anchorWords + a.Words; len(words) > n {
			words = words[:n]
		}
		matched = strings.Join(words, " ")
	}
	return cleanName(cutName(matched))
}

// windowEnd returns the byte offset just past the n-th non-empty line.
func windowEnd(text string, n int) int {
	seen := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' {
			continue
		}
		if strings.TrimSpace(text[lineStart(text, i):i]) != "" {
			seen++
		}
		if seen >= n {
			return i
		}
	}
	return len(text)
}

func lineStart(text string, i int) int {
	return strings.LastIndexByte(text[:i], '\n') + 1
}
