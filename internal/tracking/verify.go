package tracking

import (
	"time"

	"trip-tracking-service/internal/model"
)

// Verifier decides when a stop counts as GPS-verified: matched to a known
// location with dwell time at or above the minimum verification duration.
// Advancing the corresponding task link is the lifecycle's job; ending a
// trip before a stop qualifies leaves the link untouched.
type Verifier struct {
	dwell time.Duration
}

func NewVerifier(dwell time.Duration) *Verifier {
	return &Verifier{dwell: dwell}
}

// ShouldVerify reports whether the stop just reached verification at the
// given instant. Returns false for stops already verified or unmatched.
func (v *Verifier) ShouldVerify(stop *model.TripStop, now time.Time) bool {
	if stop == nil || stop.IsVerified || stop.LocationID == nil {
		return false
	}
	end := now
	if stop.EndedAt != nil && stop.EndedAt.Before(now) {
		end = *stop.EndedAt
	}
	return end.Sub(stop.StartedAt) >= v.dwell
}
