// Command example demonstrates the resource system end to end: defining
// computations and resources, driving evaluation, and persisting results
// across a restart.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"path/filepath"

	resourcesystem "github.com/project-arcana/resource-system"
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

func floatResult(v float64) base.ComputationResult {
	return base.ComputationResult{Serialized: &base.SerializedData{Blob: encodeFloat64(v)}}
}

// defineConst registers a "return the constant v" computation on engine and
// returns its CompHash. Called fresh against each engine instance, since a
// CompHash from one ResourceSystem's computations store means nothing to
// another.
func defineConst(engine *base.ResourceSystem, v float64) base.CompHash {
	// The value is part of the algorithm identity, so each constant gets
	// its own CompHash.
	algo := base.Hash{0xc0}
	copy(algo[1:], encodeFloat64(v))
	return engine.DefineComputation(base.ComputationDescriptor{
		AlgoHash:    algo,
		TypeHash:    base.Hash(base.TypeHashOf[float64]()),
		Deserialize: decodeFloat64,
		Name:        fmt.Sprintf("const(%v)", v),
		Compute:     func(args []base.ContentRef) base.ComputationResult { return floatResult(v) },
	})
}

// defineAdd registers the "sum two float64 arguments" computation on engine,
// counting each actual invocation in invocations.
func defineAdd(engine *base.ResourceSystem, invocations *int) base.CompHash {
	return engine.DefineComputation(base.ComputationDescriptor{
		AlgoHash:    base.Hash{0xad},
		Deserialize: decodeFloat64,
		Name:        "add",
		Compute: func(args []base.ContentRef) base.ComputationResult {
			*invocations++
			return floatResult(args[0].Data.(float64) + args[1].Data.(float64))
		},
	})
}

// defineSum wires up 1 + 2 as a persisted resource on engine and returns its
// ResHash, which is stable across engines since it is derived purely from
// content-addressed hashes of the computation and argument descriptions.
func defineSum(engine *base.ResourceSystem, invocations *int) base.ResHash {
	add := defineAdd(engine, invocations)
	c1, _ := engine.DefineResource(base.ResourceDescriptor{Computation: defineConst(engine, 1), Deserialize: decodeFloat64})
	c2, _ := engine.DefineResource(base.ResourceDescriptor{Computation: defineConst(engine, 2), Deserialize: decodeFloat64})
	sum, _ := engine.DefineResource(base.ResourceDescriptor{
		Computation: add,
		Args:        []base.ResHash{c1, c2},
		IsPersisted: true,
		Deserialize: decodeFloat64,
	})
	return sum
}

func main() {
	fmt.Println("Starting resource system example")

	dataDir, err := filepath.Abs("example-data")
	if err != nil {
		log.Fatalf("resolving data dir: %s", err)
	}

	cfg := config.Default()
	cfg.PersistenceDir = dataDir

	ctx := context.Background()
	invocations := 0

	sys := resourcesystem.New(cfg, nil)
	if err := sys.Start(ctx); err != nil {
		log.Fatalf("starting system: %s", err)
	}

	engine, err := sys.Engine()
	if err != nil {
		log.Fatalf("acquiring engine: %s", err)
	}

	sum := defineSum(engine, &invocations)
	engine.TryGetResourceContent(sum, true)
	engine.ProcessAll()

	ref, ok, _ := engine.TryGetResourceContent(sum, true)
	if !ok {
		log.Fatal("expected sum to be computed")
	}
	fmt.Printf("1 + 2 = %v (invocations so far: %d)\n", ref.Data, invocations)

	if err := sys.Close(ctx); err != nil {
		log.Fatalf("closing system: %s", err)
	}

	fmt.Println("restarting to demonstrate persisted invocation reuse")

	sys2 := resourcesystem.New(cfg, nil)
	if err := sys2.Start(ctx); err != nil {
		log.Fatalf("restarting system: %s", err)
	}
	defer sys2.CloseWithoutContext()

	engine2, err := sys2.Engine()
	if err != nil {
		log.Fatalf("acquiring engine after restart: %s", err)
	}

	sum2 := defineSum(engine2, &invocations)
	if sum2 != sum {
		log.Fatal("identical resource description must reproduce the same ResHash across processes")
	}

	engine2.TryGetResourceContent(sum2, true)
	engine2.ProcessAll()

	ref2, ok, _ := engine2.TryGetResourceContent(sum2, true)
	if !ok {
		log.Fatal("expected sum to still resolve after restart")
	}
	fmt.Printf("1 + 2 = %v after restart (total invocations: %d)\n", ref2.Data, invocations)
	if invocations != 1 {
		log.Fatalf("expected the persisted invocation to avoid recompute, got %d invocations", invocations)
	}
}
