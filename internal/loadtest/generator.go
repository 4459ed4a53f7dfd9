package loadtest

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"github.com/okian/pairup/internal/adapters/notify"
)

// randomIndex returns a uniform index in [0, n) using crypto/rand.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// pick draws k distinct items from pool.
func pick(pool []string, k int) []string {
	if k >= len(pool) {
		return append([]string(nil), pool...)
	}
	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	out := make([]string, 0, k)
	for i := 0; i < k; i++ {
		j := i + randomIndex(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out = append(out, pool[idx[i]])
	}
	return out
}

// generateProfiles creates n profiles with unique ids and random skills.
func generateProfiles(cfg *Config) []notify.ProfileView {
	out := make([]notify.ProfileView, cfg.Participants)
	for i := range out {
		id := uuid.NewString()
		out[i] = notify.ProfileView{
			ID:           id,
			Username:     "load-" + id[:8],
			Skills:       pick(cfg.Skills, cfg.PerProfile),
			Availability: pick(cfg.Slots, cfg.PerProfile),
		}
	}
	return out
}
