package resourcesystem

import (
	"context"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-arcana/resource-system/config"
	"github.com/project-arcana/resource-system/pkg/base"
)

func encodeFloat64(v float64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	return buf[:]
}

func decodeFloat64(blob []byte) any {
	return math.Float64frombits(binary.LittleEndian.Uint64(blob))
}

func TestSystemLifecycleWithoutPersistence(t *testing.T) {
	cfg := config.Default()
	cfg.PersistenceDir = ""
	sys := New(cfg, nil)

	_, err := sys.Engine()
	require.ErrorIs(t, err, ErrNotStarted)

	ctx := context.Background()
	require.NoError(t, sys.Start(ctx))
	require.NoError(t, sys.Start(ctx), "Start must be idempotent")

	engine, err := sys.Engine()
	require.NoError(t, err)

	comp := engine.DefineComputation(base.ComputationDescriptor{
		AlgoHash:    base.Hash{0x01},
		Deserialize: decodeFloat64,
		Compute: func(args []base.ContentRef) base.ComputationResult {
			return base.ComputationResult{Serialized: &base.SerializedData{Blob: encodeFloat64(42.0)}}
		},
	})
	res, _ := engine.DefineResource(base.ResourceDescriptor{Computation: comp, Deserialize: decodeFloat64})

	engine.TryGetResourceContent(res, true)
	engine.ProcessAll()

	ref, ok, _ := engine.TryGetResourceContent(res, true)
	require.True(t, ok)
	assert.Equal(t, 42.0, ref.Data)

	require.NoError(t, sys.Close(ctx))
	require.NoError(t, sys.Close(ctx), "Close must be idempotent")

	_, err = sys.Engine()
	require.ErrorIs(t, err, ErrClosed)
}

func TestSystemPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.PersistenceDir = filepath.Join(dir, "store")
	cfg.MinimumFreeSpaceGB = 0

	invocations := 0
	build := func(sys *System) (base.ResHash, *base.ResourceSystem) {
		engine, err := sys.Engine()
		require.NoError(t, err)
		comp := engine.DefineComputation(base.ComputationDescriptor{
			AlgoHash:    base.Hash{0x02},
			Deserialize: decodeFloat64,
			Compute: func(args []base.ContentRef) base.ComputationResult {
				invocations++
				return base.ComputationResult{Serialized: &base.SerializedData{Blob: encodeFloat64(7.0)}}
			},
		})
		res, _ := engine.DefineResource(base.ResourceDescriptor{Computation: comp, IsPersisted: true, Deserialize: decodeFloat64})
		return res, engine
	}

	first := New(cfg, nil)
	require.NoError(t, first.Start(context.Background()))
	res, engine := build(first)
	engine.TryGetResourceContent(res, true)
	engine.ProcessAll()
	require.NoError(t, first.checkpoint())
	require.Equal(t, 1, invocations)
	require.NoError(t, first.Close(context.Background()))

	second := New(cfg, nil)
	require.NoError(t, second.Start(context.Background()))
	res2, engine2 := build(second)
	require.Equal(t, res, res2)

	engine2.TryGetResourceContent(res2, true)
	engine2.ProcessAll()

	ref, ok, _ := engine2.TryGetResourceContent(res2, true)
	require.True(t, ok)
	assert.Equal(t, 7.0, ref.Data)
	assert.Equal(t, 1, invocations, "the second System must reuse the persisted invocation, not recompute")

	require.NoError(t, second.Close(context.Background()))
}

func TestSystemRunStopsOnContextCancel(t *testing.T) {
	cfg := config.Default()
	cfg.PersistenceDir = ""
	sys := New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sys.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	_, err := sys.Engine()
	require.ErrorIs(t, err, ErrClosed)
}
