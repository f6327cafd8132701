package browse

import (
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
)

// DefaultPageSize is the initial limit and the load-more increment.
const DefaultPageSize = 20

// SelectPrompt labels the "no filter" option of the category selector.
const SelectPrompt = "Select a type"

// Lineage names a sequence of fetches driven by one input.
type Lineage string

const (
	// LineageLimit fetches the first N entries of the unfiltered catalog.
	LineageLimit Lineage = "limit"

	// LineageCategory fetches the members of the selected category.
	LineageCategory Lineage = "category"

	// LineageCategories is the one-shot category list fetch.
	LineageCategories Lineage = "categories"
)

// Phase is where a lineage stands with respect to its latest request.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Outcome is how a completed fetch was handled.
type Outcome string

const (
	// OutcomeCommitted means the result replaced the visible entries.
	OutcomeCommitted Outcome = "committed"

	// OutcomeShadowed means the fetch was current but another mode owns the view.
	OutcomeShadowed Outcome = "shadowed"

	// OutcomeFailed means the fetch was current and returned an error.
	OutcomeFailed Outcome = "failed"

	// OutcomeSuperseded means a newer request replaced this one before it settled.
	OutcomeSuperseded Outcome = "superseded"
)

// Option is one choice of the category selector.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Request is a fetch issued by State. Token and Generation identify the
// input change that produced it.
type Request struct {
	Lineage    Lineage
	Token      uint64
	Generation uint64
	Limit      int
	Category   string
}

// Response is the completion of a Request.
type Response struct {
	Request
	Entries    []catalog.Entry
	Categories []catalog.Category
	Err        error
	Duration   time.Duration
}

// Snapshot is an immutable copy of the view.
type Snapshot struct {
	Entries          []catalog.Entry `json:"entries"`
	Loading          bool            `json:"loading"`
	Categories       []Option        `json:"categories"`
	SelectedCategory string          `json:"selected_category"`
	Limit            int             `json:"limit"`
}

func (s Snapshot) clone() Snapshot {
	s.Entries = copyEntries(s.Entries)
	s.Categories = append(make([]Option, 0, len(s.Categories)), s.Categories...)
	return s
}

func copyEntries(entries []catalog.Entry) []catalog.Entry {
	out := make([]catalog.Entry, len(entries))
	copy(out, entries)
	return out
}
