package extraction

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

const (
	priorityWeight = 0.3
	projectWeight  = 0.2
)

// mentionPattern matches @handles. Go's \w is ASCII-only, so letters and
// digits are spelled out to accept Cyrillic handles.
var mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}_]+)`)

// Extractor computes Contexts from messages.
type Extractor struct {
	vocab Vocabulary
	dates []datePattern
	now   func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithVocabulary replaces the default term lists.
func WithVocabulary(v Vocabulary) Option {
	return func(e *Extractor) {
		e.vocab = v.normalized()
	}
}

// WithClock sets the clock used to fill in missing years.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// New creates an Extractor with the default vocabulary.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		vocab: DefaultVocabulary().normalized(),
		dates: defaultDatePatterns,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract computes the signals carried by msgs.
func (e *Extractor) Extract(msgs []Message) Context {
	ctx := EmptyContext()
	now := e.now()

	lowered := make([]string, len(msgs))
	for i, m := range msgs {
		lowered[i] = strings.ToLower(m.Text)
	}

	for _, cat := range Categories {
		var hits []string
		for _, term := range e.vocab.Keywords[cat] {
			if containsAny(lowered, term) {
				hits = append(hits, term)
			}
		}
		if len(hits) > 0 {
			ctx.Keywords[cat] = sortedSet(hits)
		}
	}

	var mentions []string
	for _, m := range msgs {
		for _, sub := range mentionPattern.FindAllStringSubmatch(m.Text, -1) {
			mentions = append(mentions, sub[1])
		}
	}
	ctx.Mentions = sortedSet(mentions)

	for _, m := range msgs {
		ctx.Dates = append(ctx.Dates, findDates(e.dates, m, now)...)
	}

	ctx.Priority = e.scorePriority(lowered)
	ctx.ProjectHints = e.scoreProject(lowered)
	return ctx
}

// scorePriority picks the level with the most term occurrences. Levels are
// visited in precedence order and only a strictly greater count displaces the
// current pick, which resolves ties as high > medium > low.
func (e *Extractor) scorePriority(lowered []string) Priority {
	best := PriorityHigh
	bestCount := 0
	for _, level := range PriorityLevels {
		n := 0
		for _, term := range e.vocab.Priority[level] {
			n += countAll(lowered, term)
		}
		if n > bestCount {
			best, bestCount = level, n
		}
	}
	return Priority{
		Level:      best,
		Confidence: min(float64(bestCount)*priorityWeight, 1.0),
	}
}

func (e *Extractor) scoreProject(lowered []string) ProjectHints {
	var (
		keywords []string
		n        int
	)
	for _, term := range e.vocab.ProjectTerms {
		c := countAll(lowered, term)
		if c > 0 {
			keywords = append(keywords, term)
			n += c
		}
	}
	return ProjectHints{
		Keywords:   sortedSet(keywords),
		Confidence: min(float64(n)*projectWeight, 1.0),
	}
}

func containsAny(texts []string, term string) bool {
	for _, t := range texts {
		if strings.Contains(t, term) {
			return true
		}
	}
	return false
}

func countAll(texts []string, term string) int {
	n := 0
	for _, t := range texts {
		n += strings.Count(t, term)
	}
	return n
}

// sortedSet returns the distinct values of in, sorted. Never nil.
func sortedSet(in []string) []string {
	out := make([]string, 0, len(in))
	out = append(out, in...)
	slices.Sort(out)
	return slices.Compact(out)
}
