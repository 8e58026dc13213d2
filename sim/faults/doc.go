// Package faults injects host failures into a compute service.
//
// An Injector draws fault arrivals, the share of healthy hosts each fault
// takes down and how long they stay down from configurable distributions.
// Everything it does is scheduled on the service's engine, so a run with a
// fixed seed replays the same faults.
package faults
