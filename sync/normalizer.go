// api/sync/normalizer.go
package sync

import "funnelsight/api/models"

// StepFact is one deduplicated step occurrence inside an entry, classified as
// either an exit or a continue. TimeOnStep is the seconds until the next page
// visit, 0 when unknown (terminal visit or missing timestamps).
type StepFact struct {
	StepKey    string
	Exit       bool
	Continue   bool
	TimeOnStep float64
	// Position is the array position of the retained occurrence, kept for
	// diagnostics.
	Position int
}

// EntryFacts is the normalized view of one raw event: at most one fact per
// step key, plus whether the entry reached a purchase-complete step.
type EntryFacts struct {
	Completed bool
	Facts     []StepFact
}

// NormalizeEntry reduces an entry's visit sequence to per-step exit/continue
// facts.
//
// Conditional branching can send a user through the same page more than once,
// so a step key may appear at several array positions. Only the last
// occurrence (by array position, not the platform's position counter) is
// kept; counting every occurrence would misattribute an exit to an earlier
// visit of a step the user later came back to.
//
// The retained occurrence at the overall last position is the exit, unless
// the entry is completed: reaching a purchase-complete step supersedes the
// apparent exit, so a completed entry has no exit at all.
func NormalizeEntry(ev models.RawEvent, purchaseKeys map[string]bool) EntryFacts {
	visits := ev.PageVisits
	if len(visits) == 0 {
		return EntryFacts{}
	}

	completed := false
	lastIndex := make(map[string]int, len(visits))
	for i, v := range visits {
		if v.StepKey == "" {
			continue
		}
		lastIndex[v.StepKey] = i
		if purchaseKeys[v.StepKey] {
			completed = true
		}
	}

	facts := make([]StepFact, 0, len(lastIndex))
	lastPos := len(visits) - 1
	for i, v := range visits {
		if v.StepKey == "" || lastIndex[v.StepKey] != i {
			continue
		}
		exit := i == lastPos && !completed
		facts = append(facts, StepFact{
			StepKey:    v.StepKey,
			Exit:       exit,
			Continue:   !exit,
			TimeOnStep: timeOnStep(visits, i),
			Position:   i,
		})
	}

	return EntryFacts{Completed: completed, Facts: facts}
}

func timeOnStep(visits []models.PageVisit, i int) float64 {
	if i+1 >= len(visits) {
		return 0
	}
	cur, next := visits[i].VisitedAt, visits[i+1].VisitedAt
	if cur.IsZero() || next.IsZero() || next.Before(cur) {
		return 0
	}
	return next.Sub(cur).Seconds()
}
