package loadtest

import (
	"fmt"
	"slices"
)

// verify checks what the participants observed: nobody may appear in two
// sessions, and every session involving two simulated participants must
// have reached both of them.
func verify(results []Result) (Report, error) {
	ours := make(map[string]bool, len(results))
	for _, r := range results {
		ours[r.ParticipantID] = true
	}

	sessionsOf := make(map[string]map[string]bool) // participant -> session ids
	seenBy := make(map[string]map[string]bool)     // session id -> viewers
	sides := make(map[string][2]string)            // session id -> participants
	var inconsistent []string

	for _, r := range results {
		for _, s := range r.Sessions {
			if s.A.ID != r.ParticipantID && s.B.ID != r.ParticipantID {
				inconsistent = append(inconsistent, fmt.Sprintf("%s received %s", r.ParticipantID, s.SessionID))
				continue
			}
			sides[s.SessionID] = [2]string{s.A.ID, s.B.ID}
			if seenBy[s.SessionID] == nil {
				seenBy[s.SessionID] = make(map[string]bool)
			}
			seenBy[s.SessionID][r.ParticipantID] = true

			for _, id := range []string{s.A.ID, s.B.ID} {
				if sessionsOf[id] == nil {
					sessionsOf[id] = make(map[string]bool)
				}
				sessionsOf[id][s.SessionID] = true
			}
		}
	}

	var double []string
	for id, set := range sessionsOf {
		if len(set) > 1 {
			double = append(double, id)
		}
	}
	for sid, pair := range sides {
		for _, id := range pair {
			if ours[id] && !seenBy[sid][id] {
				inconsistent = append(inconsistent, fmt.Sprintf("%s missing %s", id, sid))
			}
		}
	}
	slices.Sort(double)
	slices.Sort(inconsistent)

	matched := 0
	for _, r := range results {
		if len(sessionsOf[r.ParticipantID]) > 0 {
			matched++
		}
	}

	rep := Report{
		Participants:  len(results),
		Matched:       matched,
		Unmatched:     len(results) - matched,
		Sessions:      len(sides),
		DoubleMatched: double,
		Inconsistent:  inconsistent,
	}
	switch {
	case len(double) > 0:
		return rep, fmt.Errorf("%w: %d participants", ErrDoubleMatch, len(double))
	case len(inconsistent) > 0:
		return rep, fmt.Errorf("%w: %d cases", ErrInconsistent, len(inconsistent))
	}
	return rep, nil
}
