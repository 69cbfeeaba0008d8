package tracking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"trip-tracking-service/internal/model"
)

func TestShouldVerifyAfterDwell(t *testing.T) {
	v := NewVerifier(time.Minute)
	locID := uuid.New()
	stop := &model.TripStop{LocationID: &locID, StartedAt: testBase}

	assert.False(t, v.ShouldVerify(stop, testBase.Add(30*time.Second)))
	assert.True(t, v.ShouldVerify(stop, testBase.Add(time.Minute)))
}

func TestShouldVerifyRequiresMatch(t *testing.T) {
	v := NewVerifier(time.Minute)
	stop := &model.TripStop{StartedAt: testBase}

	assert.False(t, v.ShouldVerify(stop, testBase.Add(5*time.Minute)))
}

func TestShouldVerifySkipsAlreadyVerified(t *testing.T) {
	v := NewVerifier(time.Minute)
	locID := uuid.New()
	stop := &model.TripStop{LocationID: &locID, StartedAt: testBase, IsVerified: true}

	assert.False(t, v.ShouldVerify(stop, testBase.Add(5*time.Minute)))
}

func TestShouldVerifyUsesEndedAtForClosedStops(t *testing.T) {
	v := NewVerifier(time.Minute)
	locID := uuid.New()

	ended := testBase.Add(30 * time.Second)
	stop := &model.TripStop{LocationID: &locID, StartedAt: testBase, EndedAt: &ended}

	// The stop ended before reaching the dwell; a later clock must not
	// retroactively verify it.
	assert.False(t, v.ShouldVerify(stop, testBase.Add(10*time.Minute)))
}

func TestShouldVerifyNilStop(t *testing.T) {
	v := NewVerifier(time.Minute)
	assert.False(t, v.ShouldVerify(nil, testBase))
}
