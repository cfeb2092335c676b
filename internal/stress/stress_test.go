package stress

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/anishathalye/porcupine"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_Linearizable(t *testing.T) {
	cfg := Config{
		Readers:  4,
		Writers:  2,
		Ops:      300,
		TryRatio: 0.3,
		Check:    true,
		Seed:     7,
	}
	rep, err := Run(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	require.True(t, rep.OK(), "%+v", rep)
	require.True(t, rep.Checked)
	require.Zero(t, rep.Overlaps)
	require.Zero(t, rep.Poisoned)
	require.Zero(t, rep.Panics)
	require.Equal(t, int64(4*300+2*300), rep.Reads+rep.Writes+rep.WouldBlock)
}

func TestRun_BlockingOnly(t *testing.T) {
	cfg := Config{Readers: 3, Writers: 3, Ops: 200, Check: true, Seed: 3}
	rep, err := Run(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	require.True(t, rep.OK(), "%+v", rep)
	require.Zero(t, rep.WouldBlock)
	require.Equal(t, int64(600), rep.Reads)
	require.Equal(t, int64(600), rep.Writes)
}

func TestRun_PanicPoisons(t *testing.T) {
	cfg := Config{Readers: 2, Writers: 2, Ops: 100, PanicEvery: 10, Check: true, Seed: 5}
	rep, err := Run(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	require.Equal(t, int64(1), rep.Panics)
	require.Greater(t, rep.Poisoned, int64(0))
	require.True(t, rep.OK(), "%+v", rep)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, DefaultConfig, quietLogger())
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig.Validate())
	for _, c := range []Config{
		{},
		{Readers: -1, Writers: 2, Ops: 1},
		{Readers: 1, Ops: 0},
		{Readers: 1, Ops: 1, TryRatio: 1.5},
		{Readers: 1, Ops: 1, PanicEvery: -1},
	} {
		require.Error(t, c.Validate(), "%+v", c)
	}
	_, err := Run(context.Background(), Config{}, quietLogger())
	require.Error(t, err)
}

func TestModel_RejectsStaleRead(t *testing.T) {
	history := []porcupine.Operation{
		{ClientId: 0, Input: registerInput{write: true, value: 1}, Call: 0, Output: registerOutput{}, Return: 10},
		{ClientId: 1, Input: registerInput{}, Call: 20, Output: registerOutput{value: 0}, Return: 30},
	}
	require.False(t, porcupine.CheckOperations(Model, history))

	history[1].Output = registerOutput{value: 1}
	require.True(t, porcupine.CheckOperations(Model, history))

	// Overlapping read may see either value.
	history[1].Call = 5
	history[1].Output = registerOutput{value: 0}
	require.True(t, porcupine.CheckOperations(Model, history))
}
