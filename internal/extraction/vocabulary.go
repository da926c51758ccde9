package extraction

import (
	"fmt"
	"strings"
)

// Vocabulary holds the fixed term lists the extractor matches against.
// Terms are matched case-insensitively as substrings.
type Vocabulary struct {
	Keywords     map[Category][]string      `koanf:"keywords"`
	Priority     map[PriorityLevel][]string `koanf:"priority"`
	ProjectTerms []string                   `koanf:"project_terms"`
}

// DefaultVocabulary returns the built-in Russian/English term lists.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Keywords: map[Category][]string{
			CategoryProject:  {"проект", "задача", "фича", "баг", "ошибка"},
			CategoryDeadline: {"срок", "дедлайн", "до", "к"},
			CategoryPriority: {"срочно", "важно", "критично", "блокер"},
		},
		Priority: map[PriorityLevel][]string{
			PriorityHigh:   {"срочно", "критично", "блокер", "asap"},
			PriorityMedium: {"важно", "нужно", "надо"},
			PriorityLow:    {"когда будет время", "некритично", "опционально"},
		},
		ProjectTerms: []string{"проект", "задача", "фича", "компонент", "модуль"},
	}
}

// Validate checks that no term is empty.
func (v Vocabulary) Validate() error {
	for cat, terms := range v.Keywords {
		if err := checkTerms(string(cat), terms); err != nil {
			return err
		}
	}
	for level, terms := range v.Priority {
		if _, ok := ParsePriorityLevel(string(level)); !ok {
			return fmt.Errorf("unknown priority level %q", level)
		}
		if err := checkTerms(string(level), terms); err != nil {
			return err
		}
	}
	return checkTerms("project_terms", v.ProjectTerms)
}

func checkTerms(group string, terms []string) error {
	for _, t := range terms {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("vocabulary group %q contains an empty term", group)
		}
	}
	return nil
}

// normalized returns a copy with all terms lowercased.
func (v Vocabulary) normalized() Vocabulary {
	out := Vocabulary{
		Keywords:     make(map[Category][]string, len(v.Keywords)),
		Priority:     make(map[PriorityLevel][]string, len(v.Priority)),
		ProjectTerms: lowerAll(v.ProjectTerms),
	}
	for k, terms := range v.Keywords {
		out.Keywords[k] = lowerAll(terms)
	}
	for k, terms := range v.Priority {
		out.Priority[k] = lowerAll(terms)
	}
	return out
}

func lowerAll(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = strings.ToLower(t)
	}
	return out
}
