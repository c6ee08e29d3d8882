package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/everylotbot/everylot/internal/everylot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCleanDataset(t *testing.T) {
	t.Parallel()

	r := newRig()
	report, err := r.controller().Validate(context.Background(), 0)
	require.NoError(t, err)

	assert.True(t, report.Clean())
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 300, report.MaxLength)
	assert.Empty(t, report.Offenders)
}

func TestValidateFlagsOverlongCaptions(t *testing.T) {
	t.Parallel()

	lots := lotFixtures()
	lots[2].Neighborhood = strings.Repeat("A", 320)

	r := newRig()
	r.store = newFakeStore(lots...)

	report, err := r.controller().Validate(context.Background(), 0)
	require.NoError(t, err)

	assert.False(t, report.Clean())
	assert.Equal(t, 3, report.Checked)
	require.Len(t, report.Offenders, 1)

	offender := report.Offenders[0]
	assert.Equal(t, int64(3), offender.LotID)
	assert.Equal(t, "140 OAK ST", offender.Address)
	assert.Greater(t, offender.Length, 300)
	assert.Contains(t, offender.Caption, strings.Repeat("A", 320))
}

func TestValidateHonorsLimit(t *testing.T) {
	t.Parallel()

	r := newRig()
	report, err := r.controller().Validate(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Checked)
}

func TestValidateSweepFailure(t *testing.T) {
	t.Parallel()

	r := newRig()
	r.store.sweepErr = errors.New("database is locked")

	_, err := r.controller().Validate(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep lots")
}

func TestValidatePostedLotsAreStillChecked(t *testing.T) {
	t.Parallel()

	lots := []everylot.Lot{
		{ID: 1, Address: "100 OAK ST", Neighborhood: strings.Repeat("B", 310), Posted: true},
	}
	r := newRig()
	r.store = newFakeStore(lots...)

	report, err := r.controller().Validate(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Checked)
	require.Len(t, report.Offenders, 1)
	assert.Equal(t, int64(1), report.Offenders[0].LotID)
}
