package tracking

import (
	"trip-tracking-service/internal/config"
	"trip-tracking-service/internal/geo"
	"trip-tracking-service/internal/model"
)

// Filter classifies incoming fixes against the trip's last accepted fix.
// Every fix is persisted regardless of the verdict; a non-nil reason only
// keeps the fix out of distance and stop computation.
type Filter struct {
	cfg config.TrackingConfig
}

func NewFilter(cfg config.TrackingConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Classify returns the rejection reason for the fix, or nil when accepted.
// gpsJump is set when the rejection is an implausible jump, which is worth a
// sensor-fault anomaly on top of ordinary filtering.
func (f *Filter) Classify(st *TripState, fix Fix) (reason *model.FilterReason, gpsJump bool) {
	if fix.AccuracyM != nil && *fix.AccuracyM > f.cfg.AccuracyCeilingM {
		return reasonPtr(model.FilterReasonLowAccuracy), false
	}

	last := st.LastAccepted
	if last == nil {
		return nil, false
	}

	if !fix.RecordedAt.After(last.RecordedAt) {
		return reasonPtr(model.FilterReasonOutOfOrder), false
	}

	if st.ImpliedSpeedKmh(fix) > f.cfg.MaxPlausibleKmh {
		return reasonPtr(model.FilterReasonGpsJump), true
	}

	dist := geo.Haversine(last.Point, fix.Point)
	if dist <= f.cfg.DuplicateRadiusM && fix.RecordedAt.Sub(last.RecordedAt) <= f.cfg.DuplicateWindow {
		return reasonPtr(model.FilterReasonDuplicate), false
	}

	return nil, false
}

// IsRetry reports whether the fix is a retried network submission of the
// last stored fix (same coordinate and capture time), to be treated as the
// same fix rather than a new one.
func (f *Filter) IsRetry(st *TripState, fix Fix) bool {
	last := st.LastRaw
	if last == nil {
		return false
	}
	return last.Point == fix.Point && last.RecordedAt.Equal(fix.RecordedAt)
}

func reasonPtr(r model.FilterReason) *model.FilterReason {
	return &r
}
