// Package elo computes bounded Elo-style rating adjustments.
//
// The engine is a pure function of two ratings. It knows nothing about
// participants or storage; callers seed unknown players before calling it.
package elo

import "math"

const (
	DefaultInitial       = 1000
	DefaultMaxDifference = 400
	DefaultMaxAdjustment = 20
)

// Engine holds the two protocol constants of the update rule.
type Engine struct {
	// MaxDifference caps the rating gap considered for a single game.
	MaxDifference int
	// MaxAdjustment is the K factor: the largest swing a single game can cause.
	MaxAdjustment int
}

// Default returns the engine with the standard constants (D=400, K=20).
func Default() Engine {
	return Engine{MaxDifference: DefaultMaxDifference, MaxAdjustment: DefaultMaxAdjustment}
}

// Adjust returns the new ratings of winner and loser. Results are truncated toward zero.
func (e Engine) Adjust(winner, loser int) (int, int) {
	d := float64(e.MaxDifference)
	if d <= 0 {
		d = DefaultMaxDifference
	}
	k := float64(e.MaxAdjustment)

	diff := float64(loser - winner)
	if diff > d {
		diff = d
	} else if diff < -d {
		diff = -d
	}

	ew, el := Expected(diff, d)
	newWinner := float64(winner) + k*(1-ew)
	newLoser := float64(loser) + k*(0-el)
	return int(newWinner), int(newLoser)
}

// Expected returns the expected scores of the winner and the loser for a
// clamped rating difference (loser - winner) and scale d. They sum to 1.
func Expected(diff, d float64) (float64, float64) {
	ew := 1 / (1 + math.Pow(10, diff/d))
	el := 1 / (1 + math.Pow(10, -diff/d))
	return ew, el
}
