package feedback

import (
	"sort"

	"github.com/labstack/gommon/log"
)

// orderedViews is a map keyed by record id that remembers first insertion
// order; overwriting an id keeps its original position.
type orderedViews struct {
	index map[string]int
	items []View
}

func newOrderedViews() *orderedViews {
	return &orderedViews{index: make(map[string]int)}
}

func (o *orderedViews) put(v View) {
	if i, ok := o.index[v.RecordID()]; ok {
		o.items[i] = v
		return
	}
	o.index[v.RecordID()] = len(o.items)
	o.items = append(o.items, v)
}

func (o *orderedViews) putAll(views []View) {
	for _, v := range views {
		o.put(v)
	}
}

// MergeFeedbackList combines the differently scoped lists into one list
// with a single entry per record, newest update first.
//
// Public approved and preview entries go in first. An admin list, when
// present, overwrites everything; otherwise the owner's list overwrites
// the previews of their own records with the full content. Records whose
// timestamp is unusable are logged and kept, in encounter order, after
// the dated ones.
func MergeFeedbackList(approved, preview, owner, admin []View) []View {
	merged := newOrderedViews()
	merged.putAll(approved)
	merged.putAll(preview)
	if len(admin) == 0 {
		merged.putAll(owner)
	} else {
		merged.putAll(admin)
	}

	dated := make([]View, 0, len(merged.items))
	var undated []View
	for _, v := range merged.items {
		if v.LastUpdated().IsZero() {
			log.Warnf("feedback %s has no usable updated_at, keeping encounter order", v.RecordID())
			undated = append(undated, v)
			continue
		}
		dated = append(dated, v)
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].LastUpdated().After(dated[j].LastUpdated())
	})

	return append(dated, undated...)
}
