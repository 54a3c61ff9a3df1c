package simulate

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/pulse/pkg/model"
)

const randomFloatDivisor = 1_000_000

// vitalRanges bounds generated values so every grade shows up.
var vitalRanges = map[model.VitalName][2]float64{
	model.VitalLCP:  {800, 6000},
	model.VitalFID:  {10, 400},
	model.VitalCLS:  {0, 0.4},
	model.VitalTTFB: {100, 2500},
	model.VitalFCP:  {500, 4000},
	model.VitalINP:  {30, 500},
}

// sessionPlan is what one synthetic session reports.
type sessionPlan struct {
	AppName string
	UserID  string
	Vitals  map[model.VitalName]float64
	Errors  []string
	Custom  map[string]float64
}

// appTotals is what the server should report for one app.
type appTotals struct {
	Sessions int
	Errors   int
}

// getRandomFloat returns a random float64 in [0, 1) using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomIntn(n int) int {
	if n <= 0 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// appName tags app i with the run so verification ignores foreign rows.
func appName(runID string, i int) string {
	return fmt.Sprintf("sim-%s-%d", runID, i)
}

// generatePlans spreads cfg.Sessions round-robin over cfg.Apps.
func generatePlans(cfg *Config) ([]sessionPlan, map[string]appTotals) {
	plans := make([]sessionPlan, cfg.Sessions)
	totals := make(map[string]appTotals, cfg.Apps)

	for i := range plans {
		app := appName(cfg.RunID, i%cfg.Apps)
		p := sessionPlan{
			AppName: app,
			UserID:  uuid.NewString(),
			Vitals:  make(map[model.VitalName]float64, len(model.Vitals)),
			Custom:  map[string]float64{"cartItems": float64(randomIntn(10))},
		}
		for _, v := range model.Vitals {
			// Roughly one in five sessions never reports a given vital.
			if randomIntn(5) == 0 {
				continue
			}
			r := vitalRanges[v]
			p.Vitals[v] = r[0] + getRandomFloat()*(r[1]-r[0])
		}
		for e := randomIntn(cfg.MaxErrors + 1); e > 0; e-- {
			p.Errors = append(p.Errors, fmt.Sprintf("synthetic error %d", e))
		}
		plans[i] = p

		t := totals[app]
		t.Sessions++
		t.Errors += len(p.Errors)
		totals[app] = t
	}
	return plans, totals
}

// newRunID returns a short random run tag.
func newRunID() string {
	return uuid.NewString()[:8]
}
