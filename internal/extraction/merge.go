package extraction

// Merge combines two contexts. Keyword and mention sets are unioned, date
// candidates are concatenated (a before b), and priority and project hints
// keep the value with strictly higher confidence, preferring a on a tie.
//
// Neither argument is modified.
func Merge(a, b Context) Context {
	out := EmptyContext()

	for _, cat := range Categories {
		union := make([]string, 0, len(a.Keywords[cat])+len(b.Keywords[cat]))
		union = append(union, a.Keywords[cat]...)
		union = append(union, b.Keywords[cat]...)
		if len(union) > 0 {
			out.Keywords[cat] = sortedSet(union)
		}
	}

	mentions := make([]string, 0, len(a.Mentions)+len(b.Mentions))
	mentions = append(mentions, a.Mentions...)
	mentions = append(mentions, b.Mentions...)
	out.Mentions = sortedSet(mentions)

	out.Dates = make([]DateCandidate, 0, len(a.Dates)+len(b.Dates))
	out.Dates = append(out.Dates, a.Dates...)
	out.Dates = append(out.Dates, b.Dates...)

	out.Priority = a.Priority
	if b.Priority.Confidence > a.Priority.Confidence {
		out.Priority = b.Priority
	}
	if out.Priority.Level == "" {
		out.Priority.Level = PriorityHigh
	}

	hints := a.ProjectHints
	if b.ProjectHints.Confidence > a.ProjectHints.Confidence {
		hints = b.ProjectHints
	}
	out.ProjectHints = ProjectHints{
		Keywords:   sortedSet(hints.Keywords),
		Confidence: hints.Confidence,
	}

	return out
}
