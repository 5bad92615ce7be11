package line

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/labio/labline/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlog(logger.ErrorLevel, false)
}

func TestConnState_String(t *testing.T) {
	require := require.New(t)

	require.Equal("closed", ClosedState.String())
	require.Equal("opening", OpeningState.String())
	require.Equal("open", OpenState.String())
	require.Equal("closing", ClosingState.String())
	require.Equal("faulted", FaultedState.String())
	require.Equal("unknown", ConnState(99).String())
}

func TestConnStateMgr_Transitions(t *testing.T) {
	require := require.New(t)

	t.Run("Full Lifecycle", func(t *testing.T) {
		mgr := NewConnStateMgr(testLogger())
		require.Equal(ClosedState, mgr.State())

		require.NoError(mgr.ToOpening())
		require.Equal(OpeningState, mgr.State())

		require.NoError(mgr.ToOpen())
		require.True(mgr.IsOpen())

		require.NoError(mgr.ToClosing())
		require.Equal(ClosingState, mgr.State())

		require.NoError(mgr.ToClosed())
		require.True(mgr.State().IsClosed())
	})

	t.Run("Reopen After Close", func(t *testing.T) {
		mgr := NewConnStateMgr(testLogger())
		require.NoError(mgr.ToOpening())
		require.NoError(mgr.ToOpen())
		require.NoError(mgr.ToClosing())
		require.NoError(mgr.ToClosed())

		require.NoError(mgr.ToOpening())
		require.NoError(mgr.ToOpen())
		require.True(mgr.IsOpen())
	})

	t.Run("Invalid Transitions", func(t *testing.T) {
		mgr := NewConnStateMgr(testLogger())

		require.ErrorIs(mgr.ToOpen(), ErrInvalidTransition)
		require.ErrorIs(mgr.ToClosing(), ErrInvalidTransition)
		require.ErrorIs(mgr.ToFaulted(), ErrInvalidTransition)

		require.NoError(mgr.ToOpening())
		require.NoError(mgr.ToOpen())
		require.ErrorIs(mgr.ToOpening(), ErrInvalidTransition)
	})

	t.Run("Faulted Is Absorbing", func(t *testing.T) {
		mgr := NewConnStateMgr(testLogger())
		require.NoError(mgr.ToOpening())
		require.NoError(mgr.ToOpen())

		require.NoError(mgr.ToFaulted())
		require.True(mgr.State().IsFaulted())

		// faulting twice is a no-op
		require.NoError(mgr.ToFaulted())

		// reopening requires an explicit close first
		require.ErrorIs(mgr.ToOpening(), ErrInvalidTransition)
		require.ErrorIs(mgr.ToOpen(), ErrInvalidTransition)

		require.NoError(mgr.ToClosing())
		require.NoError(mgr.ToClosed())
		require.NoError(mgr.ToOpening())
	})

	t.Run("Rejected Transition Logged", func(t *testing.T) {
		mockLog := logger.NewMockLogger()
		mockLog.On("Debug", mock.Anything, mock.Anything).Return()

		mgr := NewConnStateMgr(mockLog)
		require.ErrorIs(mgr.ToOpen(), ErrInvalidTransition)

		mockLog.AssertCalled(t, "Debug", "rejected connection state transition", mock.Anything)
	})

	t.Run("Close Is Idempotent", func(t *testing.T) {
		mgr := NewConnStateMgr(testLogger())
		require.NoError(mgr.ToClosed())
		require.NoError(mgr.ToClosed())
	})

	t.Run("Aborted Open", func(t *testing.T) {
		mgr := NewConnStateMgr(testLogger())
		require.NoError(mgr.ToOpening())
		require.NoError(mgr.ToClosed())
		require.True(mgr.State().IsClosed())
	})
}

func TestConnStateMgr_Handlers(t *testing.T) {
	require := require.New(t)

	type change struct {
		prev ConnState
		next ConnState
	}

	var changes []change
	handler := func(prevState ConnState, newState ConnState) {
		changes = append(changes, change{prevState, newState})
	}

	mgr := NewConnStateMgr(testLogger(), handler)
	require.NoError(mgr.ToOpening())
	require.NoError(mgr.ToOpen())

	var extra []change
	mgr.AddHandler(func(prevState ConnState, newState ConnState) {
		extra = append(extra, change{prevState, newState})
	})
	require.NoError(mgr.ToClosing())
	require.NoError(mgr.ToClosed())

	require.Equal([]change{
		{ClosedState, OpeningState},
		{OpeningState, OpenState},
		{OpenState, ClosingState},
		{ClosingState, ClosedState},
	}, changes)
	require.Equal([]change{
		{OpenState, ClosingState},
		{ClosingState, ClosedState},
	}, extra)
}

func TestConnStateMgr_WaitState(t *testing.T) {
	require := require.New(t)

	t.Run("Already In State", func(t *testing.T) {
		mgr := NewConnStateMgr(testLogger())
		require.NoError(mgr.WaitState(context.Background(), ClosedState))
	})

	t.Run("Reaches State", func(t *testing.T) {
		mgr := NewConnStateMgr(testLogger())

		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = mgr.ToOpening()
			_ = mgr.ToOpen()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(mgr.WaitState(ctx, OpenState))
		require.True(mgr.IsOpen())
	})

	t.Run("Context Timeout", func(t *testing.T) {
		mgr := NewConnStateMgr(testLogger())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := mgr.WaitState(ctx, OpenState)
		require.ErrorIs(err, context.DeadlineExceeded)
	})
}
