package identity

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxScanBytes bounds how much of each file signature rules inspect.
const DefaultMaxScanBytes = 1024 * 1024

// Rule tags files whose content matches Pattern. If Extensions is set the
// rule only applies to files with one of those extensions.
type Rule struct {
	Name       string   `yaml:"name" json:"name"`
	Pattern    string   `yaml:"pattern" json:"pattern"`
	Extensions []string `yaml:"extensions,omitempty" json:"extensions,omitempty"`
}

// DefaultRules returns the built-in signature rules.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "email-address", Pattern: `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`},
		{Name: "us-ssn", Pattern: `\b\d{3}-\d{2}-\d{4}\b`},
		{Name: "credit-card", Pattern: `\b(?:4\d{3}|5[1-5]\d{2}|3[47]\d{2}|6011)[ -]?\d{4}[ -]?\d{4}[ -]?\d{1,4}\b`},
		{Name: "ipv4-address", Pattern: `\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`},
		{Name: "private-key", Pattern: `-----BEGIN (?:[A-Z]+ )?PRIVATE KEY-----`},
		{Name: "pdf-javascript", Pattern: `/(?:JavaScript|JS)\b`, Extensions: []string{".pdf"}},
	}
}

type compiledRule struct {
	name       string
	re         *regexp.Regexp
	extensions map[string]bool
}

// RuleSet is a compiled, immutable set of signature rules. It is safe for
// concurrent use. A nil RuleSet matches nothing.
type RuleSet struct {
	rules        []compiledRule
	maxScanBytes int
}

// CompileRules compiles rules. maxScanBytes <= 0 selects DefaultMaxScanBytes.
func CompileRules(rules []Rule, maxScanBytes int) (*RuleSet, error) {
	if maxScanBytes <= 0 {
		maxScanBytes = DefaultMaxScanBytes
	}

	rs := &RuleSet{maxScanBytes: maxScanBytes}
	seen := make(map[string]bool, len(rules))

	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("signature rule with pattern %q has no name", r.Pattern)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate signature rule %q", r.Name)
		}
		seen[r.Name] = true

		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("signature rule %q: %w", r.Name, err)
		}

		cr := compiledRule{name: r.Name, re: re}
		if len(r.Extensions) > 0 {
			cr.extensions = make(map[string]bool, len(r.Extensions))
			for _, ext := range r.Extensions {
				cr.extensions[NormalizeExtension(ext)] = true
			}
		}
		rs.rules = append(rs.rules, cr)
	}

	return rs, nil
}

// MaxScanBytes reports how many leading bytes Match inspects.
func (rs *RuleSet) MaxScanBytes() int {
	if rs == nil {
		return 0
	}
	return rs.maxScanBytes
}

// Match returns the sorted names of rules matching content. ext is the
// file's normalized extension. The result is never nil.
func (rs *RuleSet) Match(ext string, content []byte) []string {
	tags := []string{}
	if rs == nil {
		return tags
	}

	if len(content) > rs.maxScanBytes {
		content = content[:rs.maxScanBytes]
	}

	for _, r := range rs.rules {
		if r.extensions != nil && !r.extensions[ext] {
			continue
		}
		if r.re.Match(content) {
			tags = append(tags, r.name)
		}
	}

	sort.Strings(tags)
	return tags
}

// NormalizeExtension lower-cases ext and ensures a leading dot. An empty
// extension stays empty.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}
