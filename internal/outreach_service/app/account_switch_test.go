package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

func newTestSwitcher(retries int) *AccountSwitchVerifier {
	return NewAccountSwitchVerifier(SwitchConfig{
		SettleDelay:  0,
		PollInterval: 0,
		PollRounds:   3,
		Retries:      retries,
	}, testLogger())
}

func TestAccountSwitch_VerifiedByNameAndCounterChange(t *testing.T) {
	surface := newFakeSurface()
	surface.activeAccount = "门店A"
	surface.counts = map[string]int{"门店A": 12, "门店B": 57}

	err := newTestSwitcher(0).Switch(context.Background(), surface, "门店B")
	require.NoError(t, err)
	assert.Equal(t, "门店B", surface.activeAccount)
	assert.Equal(t, 1, surface.selectClicks)
}

func TestAccountSwitch_AlreadyActiveSkipsClick(t *testing.T) {
	surface := newFakeSurface()
	surface.activeAccount = "门店A"

	err := newTestSwitcher(0).Switch(context.Background(), surface, "门店A")
	require.NoError(t, err)
	assert.Zero(t, surface.selectClicks)
}

func TestAccountSwitch_NameNeverUpdates(t *testing.T) {
	surface := newFakeSurface()
	surface.activeAccount = "门店A"
	surface.counts = map[string]int{"门店A": 12, "门店B": 57}
	surface.renderOnClick = false

	err := newTestSwitcher(2).Switch(context.Background(), surface, "门店B")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSwitchUnverified)
	// Full click sequence retried up to the cap.
	assert.Equal(t, 3, surface.selectClicks)
}

func TestAccountSwitch_CounterUnchangedIsUnverified(t *testing.T) {
	// The name updates but both accounts show the same counter, so the
	// re-render proof never arrives within the attempt.
	surface := newFakeSurface()
	surface.activeAccount = "门店A"
	surface.counts = map[string]int{"门店A": 30, "门店B": 30}

	err := newTestSwitcher(0).Switch(context.Background(), surface, "门店B")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSwitchUnverified)
}

func TestAccountSwitch_RetryAcceptsAlreadyRenamedConsole(t *testing.T) {
	// Same counter scenario but with a retry budget: the second attempt finds
	// the target name already displayed and accepts it.
	surface := newFakeSurface()
	surface.activeAccount = "门店A"
	surface.counts = map[string]int{"门店A": 30, "门店B": 30}

	err := newTestSwitcher(1).Switch(context.Background(), surface, "门店B")
	require.NoError(t, err)
	assert.Equal(t, 1, surface.selectClicks)
}

func TestAccountSwitch_CancelledContextStopsRetrying(t *testing.T) {
	surface := newFakeSurface()
	surface.activeAccount = "门店A"
	surface.renderOnClick = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	switcher := NewAccountSwitchVerifier(SwitchConfig{
		SettleDelay:  time.Millisecond,
		PollInterval: time.Millisecond,
		PollRounds:   3,
		Retries:      5,
	}, testLogger())

	err := switcher.Switch(ctx, surface, "门店B")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
