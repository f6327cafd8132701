package browse

import (
	"github.com/Sternrassler/catalog-browser/pkg/catalog"
)

type lineage struct {
	seq   uint64
	phase Phase
}

func (l *lineage) start() uint64 {
	l.seq++
	l.phase = PhaseFetching
	return l.seq
}

// invalidate drops the outstanding request without starting a new one.
func (l *lineage) invalidate() {
	l.seq++
	l.phase = PhaseIdle
}

// State is the view reducer. It performs no I/O: input changes return the
// Requests to issue, and Complete folds their Responses back in. State is
// not safe for concurrent use.
type State struct {
	pageSize int
	mounted  bool

	limit    int
	selected string

	// generation advances on every input change; committed is the
	// generation of the visible entries.
	generation uint64
	committed  uint64
	entries    []catalog.Entry

	categories       []catalog.Category
	categoriesLoaded bool

	limitLine    lineage
	categoryLine lineage
}

// NewState returns a State whose limit starts at pageSize and grows by
// pageSize per IncreaseLimit. pageSize < 1 selects DefaultPageSize.
func NewState(pageSize int) *State {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &State{
		pageSize: pageSize,
		limit:    pageSize,
	}
}

// Mount issues the initial limit fetch. It returns false when already mounted.
func (s *State) Mount() (Request, bool) {
	if s.mounted {
		return Request{}, false
	}
	s.mounted = true
	s.generation++
	return s.startLimit(), true
}

// IncreaseLimit widens the window by one page and refetches it.
func (s *State) IncreaseLimit() Request {
	s.limit += s.pageSize
	s.generation++
	return s.startLimit()
}

func (s *State) startLimit() Request {
	return Request{
		Lineage:    LineageLimit,
		Token:      s.limitLine.start(),
		Generation: s.generation,
		Limit:      s.limit,
		Category:   s.selected,
	}
}

// SelectCategory sets the filter. It returns a Request when the selection
// changed to a non-empty value. Selecting the current value does nothing.
// Clearing the selection fetches nothing and drops any outstanding
// category request; the visible entries stay as they are.
func (s *State) SelectCategory(name string) (Request, bool) {
	if name == s.selected {
		return Request{}, false
	}
	s.selected = name
	s.generation++

	if name == "" {
		s.categoryLine.invalidate()
		return Request{}, false
	}

	return Request{
		Lineage:    LineageCategory,
		Token:      s.categoryLine.start(),
		Generation: s.generation,
		Limit:      s.limit,
		Category:   name,
	}, true
}

// Complete folds a finished fetch into the state and reports what happened.
func (s *State) Complete(resp Response) Outcome {
	var line *lineage
	switch resp.Lineage {
	case LineageLimit:
		line = &s.limitLine
	case LineageCategory:
		line = &s.categoryLine
	case LineageCategories:
		if resp.Err != nil {
			return OutcomeFailed
		}
		if !s.LoadCategories(resp.Categories) {
			return OutcomeShadowed
		}
		return OutcomeCommitted
	default:
		return OutcomeSuperseded
	}

	if resp.Token != line.seq || line.phase != PhaseFetching {
		return OutcomeSuperseded
	}
	line.phase = PhaseSettled

	if resp.Err != nil {
		return OutcomeFailed
	}
	if resp.Lineage == LineageLimit && resp.Category != "" {
		return OutcomeShadowed
	}
	if resp.Generation <= s.committed {
		return OutcomeShadowed
	}

	s.entries = copyEntries(resp.Entries)
	s.committed = resp.Generation
	return OutcomeCommitted
}

// LoadCategories sets the category list. Only the first call has an effect.
func (s *State) LoadCategories(categories []catalog.Category) bool {
	if s.categoriesLoaded {
		return false
	}
	s.categoriesLoaded = true
	s.categories = append([]catalog.Category(nil), categories...)
	return true
}

// Loading reports whether any lineage has a current request outstanding.
func (s *State) Loading() bool {
	return s.limitLine.phase == PhaseFetching || s.categoryLine.phase == PhaseFetching
}

// Phase returns the phase of the limit or category lineage.
func (s *State) Phase(l Lineage) Phase {
	switch l {
	case LineageLimit:
		return s.limitLine.phase
	case LineageCategory:
		return s.categoryLine.phase
	default:
		return PhaseIdle
	}
}

// Snapshot copies the view.
func (s *State) Snapshot() Snapshot {
	options := make([]Option, 0, len(s.categories)+1)
	options = append(options, Option{Label: SelectPrompt, Value: ""})
	for _, c := range s.categories {
		options = append(options, Option{Label: c.Name, Value: c.Name})
	}

	return Snapshot{
		Entries:          copyEntries(s.entries),
		Loading:          s.Loading(),
		Categories:       options,
		SelectedCategory: s.selected,
		Limit:            s.limit,
	}
}
