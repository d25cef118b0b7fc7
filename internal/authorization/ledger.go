package authorization

import "github.com/ticketforge/mint-engine/internal/model"

// Ledger tracks, per category, the seats a reconciliation may hand out: the
// unreserved seats, plus the seats freed by cancelled authorizations, minus
// the authorizations still outstanding.  Accounting is strictly per category.
type Ledger struct {
	entries map[string]*ledgerEntry
	order   []string
}

type ledgerEntry struct {
	category    model.CategoryInventory
	freed       int64
	requested   int64
	outstanding int64
}

// Shortfall describes a category that cannot serve its requests.
type Shortfall struct {
	CategoryID string `json:"category_id"`
	Requested  int64  `json:"requested"`
	Available  int64  `json:"available"`
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*ledgerEntry)}
}

// Track registers a category.  Tracking the same category twice keeps the
// counters of the first call.
func (l *Ledger) Track(c model.CategoryInventory) {
	if _, ok := l.entries[c.ID]; ok {
		return
	}
	l.entries[c.ID] = &ledgerEntry{category: c}
	l.order = append(l.order, c.ID)
}

// Category returns a tracked category.
func (l *Ledger) Category(id string) (model.CategoryInventory, bool) {
	e, ok := l.entries[id]
	if !ok {
		return model.CategoryInventory{}, false
	}
	return e.category, true
}

// Free credits one seat back to a category.
func (l *Ledger) Free(categoryID string) {
	if e, ok := l.entries[categoryID]; ok {
		e.freed++
	}
}

// Request records one new authorization wanted for a category.
func (l *Ledger) Request(categoryID string) {
	if e, ok := l.entries[categoryID]; ok {
		e.requested++
	}
}

// SetOutstanding records how many live authorizations hold seats of a
// category.
func (l *Ledger) SetOutstanding(categoryID string, n int64) {
	if e, ok := l.entries[categoryID]; ok {
		e.outstanding = n
	}
}

// Freed returns the seats freed for a category.
func (l *Ledger) Freed(categoryID string) int64 {
	if e, ok := l.entries[categoryID]; ok {
		return e.freed
	}
	return 0
}

// FreedByCategory returns the freed seats of every tracked category.
func (l *Ledger) FreedByCategory() map[string]int64 {
	out := make(map[string]int64, len(l.order))
	for _, id := range l.order {
		out[id] = l.entries[id].freed
	}
	return out
}

// Available returns seats - reserved + freed - outstanding.
func (l *Ledger) Available(categoryID string) int64 {
	e, ok := l.entries[categoryID]
	if !ok {
		return 0
	}
	return e.category.Unreserved() + e.freed - e.outstanding
}

// RequestedCategories lists, in tracking order, the categories with at
// least one request.
func (l *Ledger) RequestedCategories() []string {
	var ids []string
	for _, id := range l.order {
		if l.entries[id].requested > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Shortfalls lists the requested categories without enough seats.
func (l *Ledger) Shortfalls() []Shortfall {
	var out []Shortfall
	for _, id := range l.RequestedCategories() {
		e := l.entries[id]
		if avail := l.Available(id); avail < e.requested {
			out = append(out, Shortfall{CategoryID: id, Requested: e.requested, Available: avail})
		}
	}
	return out
}
