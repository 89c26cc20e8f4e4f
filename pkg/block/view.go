package block

// View is a JSON-friendly, nested copy of a subtree for renderers and the
// local server. Source text is omitted.
type View struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Kind         Kind     `json:"kind"`
	Language     string   `json:"language,omitempty"`
	Path         string   `json:"path,omitempty"`
	StartLine    int      `json:"start_line,omitempty"`
	EndLine      int      `json:"end_line,omitempty"`
	LineCount    int      `json:"line_count"`
	Metrics      *Metrics `json:"metrics,omitempty"`
	Grade        Grade    `json:"grade"`
	OwnGrade     Grade    `json:"own_grade"`
	WarningCount int      `json:"warning_count"`
	ComplexCount int      `json:"complex_count"`
	Notes        []string `json:"notes,omitempty"`

	Status     string `json:"status,omitempty"`
	Summary    string `json:"summary,omitempty"`
	Pseudocode string `json:"pseudocode,omitempty"`
	Error      string `json:"error,omitempty"`

	Children []*View `json:"children,omitempty"`
}

// BuildView copies the subtree rooted at n. decorate, if non-nil, is called
// for every node to attach analysis state.
func (t *Tree) BuildView(n *Node, decorate func(n *Node, v *View)) *View {
	v := &View{
		ID:           n.ID,
		Name:         n.Name,
		Kind:         n.Kind,
		Language:     n.Language,
		Path:         n.Path,
		StartLine:    n.StartLine,
		EndLine:      n.EndLine,
		LineCount:    n.LineCount(),
		Metrics:      n.metrics,
		Grade:        n.effective,
		OwnGrade:     n.ownGrade,
		WarningCount: n.warningCount,
		ComplexCount: n.complexCount,
	}
	if decorate != nil {
		decorate(n, v)
	}
	for _, c := range t.Children(n) {
		v.Children = append(v.Children, t.BuildView(c, decorate))
	}
	return v
}
