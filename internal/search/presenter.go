package search

// DefaultPageSize is the initial reveal window and the growth step.
const DefaultPageSize = 40

// Presenter accumulates engine output into one deduplicated, relevance
// sorted list and exposes a growing reveal window over it. Reset it
// whenever the query, navigation state, or search config changes.
type Presenter struct {
	pageSize  int
	reveal    int
	normQuery string
	seen      map[string]struct{}
	items     []Result
}

// NewPresenter creates a presenter with the given page size (0 means
// DefaultPageSize).
func NewPresenter(pageSize int) *Presenter {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := &Presenter{pageSize: pageSize}
	p.Reset("")
	return p
}

// Reset clears accumulated results and the reveal window for a new
// search pass against query.
func (p *Presenter) Reset(query string) {
	p.normQuery = Normalize(query)
	p.reveal = p.pageSize
	p.seen = make(map[string]struct{})
	p.items = p.items[:0]
}

// Merge appends a batch of results, dropping IDs already present, and
// re-imposes display ordering. Batches may arrive in any order within
// one search pass; the stable relevance sort makes the final ordering
// independent of arrival interleaving for ranked items.
func (p *Presenter) Merge(batch []Result) {
	for _, item := range batch {
		if _, dup := p.seen[item.ID]; dup {
			continue
		}
		p.seen[item.ID] = struct{}{}
		p.items = append(p.items, item)
	}
	SortByRelevance(p.items, p.normQuery)
}

// Grow widens the reveal window by one page. Triggered by the UI's
// near-bottom signal.
func (p *Presenter) Grow() {
	p.reveal += p.pageSize
}

// Window returns the currently revealed slice of results.
func (p *Presenter) Window() []Result {
	if len(p.items) <= p.reveal {
		return p.items
	}
	return p.items[:p.reveal]
}

// HasMore reports whether results beyond the reveal window exist.
func (p *Presenter) HasMore() bool {
	return len(p.items) > p.reveal
}

// Len returns the total number of accumulated results.
func (p *Presenter) Len() int {
	return len(p.items)
}
