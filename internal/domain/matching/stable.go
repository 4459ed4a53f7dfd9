package matching

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/pkg/logger"
)

// PairCohorts runs a stable matching between the queued members of cohortA
// (proposers) and cohortB, using the engine's scorer for preferences.
// Pairs scoring zero are never formed. Each stable pair is committed; pairs
// whose members left in the meantime are skipped.
func (e *Engine) PairCohorts(ctx context.Context, cohortA, cohortB string) ([]model.Session, error) {
	cohortA, cohortB = strings.TrimSpace(cohortA), strings.TrimSpace(cohortB)
	if cohortA == "" || cohortB == "" || strings.EqualFold(cohortA, cohortB) {
		return nil, ErrInvalidCohort
	}

	var proposers, receivers []model.QueueEntry
	for _, entry := range e.pool.Snapshot("") {
		switch {
		case strings.EqualFold(entry.Profile.Cohort, cohortA):
			proposers = append(proposers, entry)
		case strings.EqualFold(entry.Profile.Cohort, cohortB):
			receivers = append(receivers, entry)
		}
	}

	pairs := e.stablePairs(proposers, receivers)
	sessions := make([]model.Session, 0, len(pairs))
	for _, p := range pairs {
		s, err := e.committer.Commit(ctx, p[0], p[1], TriggerCohort)
		if err != nil {
			if errors.Is(err, ErrPartnerUnavailable) {
				continue
			}
			return sessions, err
		}
		sessions = append(sessions, s)
	}

	e.logger.Info(ctx, "cohort pairing finished",
		logger.String("proposers", cohortA),
		logger.String("receivers", cohortB),
		logger.Int("pairs", len(pairs)),
		logger.Int("committed", len(sessions)),
	)
	return sessions, nil
}

// stablePairs is deferred-acceptance over index-based preference lists.
// Inputs are in enqueue order, which breaks score ties.
func (e *Engine) stablePairs(proposers, receivers []model.QueueEntry) [][2]string {
	if len(proposers) == 0 || len(receivers) == 0 {
		return nil
	}

	scores := make([][]float64, len(proposers))
	prefs := make([][]int, len(proposers))
	for i, p := range proposers {
		scores[i] = make([]float64, len(receivers))
		for j, r := range receivers {
			scores[i][j] = e.scorer.Score(p.Profile, r.Profile).Score
			if scores[i][j] > 0 {
				prefs[i] = append(prefs[i], j)
			}
		}
		row := scores[i]
		sort.SliceStable(prefs[i], func(a, b int) bool { return row[prefs[i][a]] > row[prefs[i][b]] })
	}

	// prefers reports whether receiver j ranks proposer x above proposer y.
	prefers := func(j, x, y int) bool {
		if scores[x][j] != scores[y][j] {
			return scores[x][j] > scores[y][j]
		}
		return x < y
	}

	engaged := make([]int, len(receivers))
	for j := range engaged {
		engaged[j] = -1
	}
	next := make([]int, len(proposers))
	free := make([]int, 0, len(proposers))
	for i := len(proposers) - 1; i >= 0; i-- {
		free = append(free, i)
	}

	for len(free) > 0 {
		i := free[len(free)-1]
		free = free[:len(free)-1]
		if next[i] >= len(prefs[i]) {
			continue
		}
		j := prefs[i][next[i]]
		next[i]++

		switch cur := engaged[j]; {
		case cur < 0:
			engaged[j] = i
		case prefers(j, i, cur):
			engaged[j] = i
			free = append(free, cur)
		default:
			free = append(free, i)
		}
	}

	byProposer := make([]int, len(proposers))
	for i := range byProposer {
		byProposer[i] = -1
	}
	for j, i := range engaged {
		if i >= 0 {
			byProposer[i] = j
		}
	}
	var out [][2]string
	for i, j := range byProposer {
		if j >= 0 {
			out = append(out, [2]string{proposers[i].ParticipantID(), receivers[j].ParticipantID()})
		}
	}
	return out
}
