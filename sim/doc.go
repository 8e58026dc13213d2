// Package sim provides the discrete-event kernel of fleet-sim.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - engine.go: virtual clock, cancellable event queue, run loops
//   - rng.go: per-subsystem deterministic random streams
//   - errors.go: the invariant-violation abort used by every package
//
// # Architecture
//
// Everything above the kernel lives in sub-packages:
//   - sim/flow/: per-host resource flow graphs (sources, sinks, multiplexers,
//     transformers) recomputed only at interesting instants
//   - sim/scheduler/: filter/weigher host selection pipeline
//   - sim/compute/: hosts, servers and the admission loop
//   - sim/faults/: stochastic host failure and recovery
//   - sim/workload/: workload trace specifications and synthesis
//   - sim/telemetry/: host, server and fault records and their sinks
//   - sim/scenario/: YAML bundles and wiring of a complete run
//
// All state is mutated from Engine callbacks on a single goroutine, so no
// package in the core takes locks.
package sim
