// Package pattern detects coarse usage categories from keyword tables.
//
// The table is plain data: extend it by adding entries (in code or in a YAML
// file loaded with LoadFile), never by introducing new types.
package pattern

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DetectThreshold is the confidence a category must exceed to be reported.
	DetectThreshold = 0.3
	// StrongThreshold is the confidence above which a match is acted on.
	StrongThreshold = 0.5
)

// ErrEmptyRegistry is returned when a table has no usable categories.
var ErrEmptyRegistry = errors.New("pattern registry has no categories")

// Pattern is one category label with its representative keywords.
type Pattern struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// Match is the result of a successful detection.
type Match struct {
	Category   string
	Confidence float64
}

// Strong reports whether the match is confident enough to route on.
func (m Match) Strong() bool {
	return m.Confidence > StrongThreshold
}

// Registry is an ordered, immutable category table. Order breaks ties.
type Registry struct {
	patterns []Pattern
}

var defaultPatterns = []Pattern{
	{
		Category: "Trade",
		Keywords: []string{"XAUUSD", "エントリー", "ATR", "ロット", "ポジション", "損切り", "利確", "チャート", "トレード", "FX", "為替"},
	},
	{
		Category: "Dev",
		Keywords: []string{"設計", "実装", "API", "Cursor", "コード", "関数", "クラス", "バグ", "デバッグ", "テスト", "リリース"},
	},
	{
		Category: "Research",
		Keywords: []string{"法華経", "言霊", "天津金木", "五十音", "構文", "研究", "分析", "考察", "文献", "資料"},
	},
	{
		Category: "Business",
		Keywords: []string{"企画", "LP", "価格", "プラン", "マーケティング", "営業", "顧客", "売上", "収益", "戦略"},
	},
}

// Default returns the built-in category table.
func Default() *Registry {
	r, _ := NewRegistry(defaultPatterns)
	return r
}

// NewRegistry validates and copies the given table. Categories must be
// unique and non-empty and carry at least one non-blank keyword.
func NewRegistry(patterns []Pattern) (*Registry, error) {
	seen := make(map[string]bool, len(patterns))
	out := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		category := strings.TrimSpace(p.Category)
		if category == "" {
			return nil, fmt.Errorf("pattern with empty category")
		}
		if seen[category] {
			return nil, fmt.Errorf("duplicate category %q", category)
		}
		seen[category] = true

		var keywords []string
		for _, kw := range p.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("category %q has no keywords", category)
		}
		out = append(out, Pattern{Category: category, Keywords: keywords})
	}
	if len(out) == 0 {
		return nil, ErrEmptyRegistry
	}
	return &Registry{patterns: out}, nil
}

// LoadFile reads a YAML category table:
//
//	patterns:
//	  - category: Research
//	    keywords: [paper, survey, citation]
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns: %w", err)
	}
	var doc struct {
		Patterns []Pattern `yaml:"patterns"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse patterns %s: %w", path, err)
	}
	r, err := NewRegistry(doc.Patterns)
	if err != nil {
		return nil, fmt.Errorf("patterns %s: %w", path, err)
	}
	return r, nil
}

// Patterns returns a copy of the table.
func (r *Registry) Patterns() []Pattern {
	out := make([]Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Detect scores text against every category. The confidence of a category is
// the fraction of its keywords found as case-insensitive substrings. The best
// category is returned only when its confidence exceeds DetectThreshold.
func (r *Registry) Detect(text string) (Match, bool) {
	lower := strings.ToLower(text)
	var best Match
	for _, p := range r.patterns {
		found := 0
		for _, kw := range p.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				found++
			}
		}
		if found == 0 {
			continue
		}
		confidence := float64(found) / float64(len(p.Keywords))
		if confidence > best.Confidence {
			best = Match{Category: p.Category, Confidence: confidence}
		}
	}
	if best.Category == "" || best.Confidence <= DetectThreshold {
		return Match{}, false
	}
	return best, true
}
