package secrets

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Scrubber detects and redacts secrets.
type Scrubber interface {
	// Scrub returns content with every detected secret replaced.
	Scrub(content string) *Result
	// Enabled reports whether Scrub changes anything.
	Enabled() bool
}

// Result describes one scrub.
type Result struct {
	Scrubbed      string         `json:"scrubbed"`
	Findings      []Finding      `json:"findings,omitempty"`
	TotalFindings int            `json:"total_findings"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}

// Finding is a detected secret. The matched text is never retained.
type Finding struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Line     int    `json:"line"`
}

type scrubber struct {
	enabled   bool
	redaction string
	rules     []*compiledRule
	allow     []*regexp.Regexp
	// gitleaks is nil unless Config.Gitleaks is set.
	gitleaks *gitleaksConfig.Config
}

// New creates a Scrubber. A nil cfg uses DefaultConfig.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return Nop(), nil
	}
	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	redaction := cfg.Redaction
	if redaction == "" {
		redaction = DefaultRedaction
	}
	s := &scrubber{enabled: true, redaction: redaction, rules: rules, allow: allow}
	if cfg.Gitleaks {
		detector, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("load gitleaks rules: %w", err)
		}
		s.gitleaks = &detector.Config
	}
	return s, nil
}

type span struct{ start, end int }

// Scrub is safe for concurrent use; the scrubber is immutable.
func (s *scrubber) Scrub(content string) *Result {
	result := &Result{Scrubbed: content, ByRule: map[string]int{}}

	var spans []span
	for _, rule := range s.rules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Start:    m[0],
				End:      m[1],
				Line:     strings.Count(content[:m[0]], "\n") + 1,
			})
			result.ByRule[rule.ID]++
			spans = append(spans, span{m[0], m[1]})
		}
	}
	spans = s.detectGitleaks(content, result, spans)
	result.TotalFindings = len(result.Findings)
	if len(spans) == 0 {
		return result
	}

	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, sp := range mergeSpans(spans) {
		b.WriteString(content[pos:sp.start])
		b.WriteString(s.redaction)
		pos = sp.end
	}
	b.WriteString(content[pos:])
	result.Scrubbed = b.String()
	return result
}

func (s *scrubber) Enabled() bool { return s.enabled }

// detectGitleaks runs the gitleaks ruleset and records secrets not already
// covered by a local rule. A detector accumulates findings, so each call
// gets a fresh one.
func (s *scrubber) detectGitleaks(content string, result *Result, spans []span) []span {
	if s.gitleaks == nil {
		return spans
	}
	for _, f := range detect.NewDetector(*s.gitleaks).DetectString(content) {
		if f.Secret == "" || s.allowed(f.Secret) {
			continue
		}
		for from := 0; ; {
			i := strings.Index(content[from:], f.Secret)
			if i < 0 {
				break
			}
			sp := span{from + i, from + i + len(f.Secret)}
			from = sp.end
			if covered(spans, sp) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				RuleID:   f.RuleID,
				Severity: "high",
				Start:    sp.start,
				End:      sp.end,
				Line:     strings.Count(content[:sp.start], "\n") + 1,
			})
			result.ByRule[f.RuleID]++
			spans = append(spans, sp)
		}
	}
	return spans
}

func covered(spans []span, sp span) bool {
	for _, c := range spans {
		if c.start <= sp.start && sp.end <= c.end {
			return true
		}
	}
	return false
}

func (s *scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

// mergeSpans joins overlapping or touching spans. Input is sorted by start.
func mergeSpans(spans []span) []span {
	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			last.end = max(last.end, cur.end)
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

type nop struct{}

// Nop returns a Scrubber that changes nothing.
func Nop() Scrubber { return nop{} }

func (nop) Scrub(content string) *Result { return &Result{Scrubbed: content} }
func (nop) Enabled() bool                { return false }
