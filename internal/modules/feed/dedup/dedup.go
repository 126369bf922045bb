// Package dedup computes the genuinely new items of a freshly fetched
// feed document against the recorded history for its URL.
package dedup

import (
	"github.com/ellis-vester/backloggd-discord/internal/modules/feed/domain"
	"github.com/samber/lo"
)

// Engine diffs feed documents against known item keys.
type Engine struct {
	retentionCap int
}

// New creates an engine that trims known-key history to retentionCap,
// evicting oldest-inserted keys first.
func New(retentionCap int) *Engine {
	return &Engine{retentionCap: retentionCap}
}

// Diff returns the items of doc whose dedup key is not in known, in
// chronological (oldest-first) order, together with the updated known
// set. The inputs are not mutated.
//
// A nil or empty known set marks the first-ever poll of the feed: the
// current document seeds the known set and nothing is reported as new,
// so subscribing never replays the feed's existing history.
func (e *Engine) Diff(doc *domain.FeedDocument, known *domain.KnownIDs) ([]domain.FeedItem, *domain.KnownIDs) {
	updated := domain.NewKnownIDs()
	if known != nil {
		updated = known.Clone()
	}

	bootstrap := updated.Len() == 0

	// Scan in document order (newest-first by feed convention).
	var fresh []domain.FeedItem
	for _, item := range doc.Items {
		key := item.Key()
		if !updated.Contains(key) && !bootstrap {
			fresh = append(fresh, item)
		}
		updated.Add(key)
	}

	updated.Trim(e.retentionCap)

	// Reverse so notifications go out oldest-first.
	return lo.Reverse(fresh), updated
}
