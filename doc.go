// Package masfro is a multi-agent coordination runtime for urban
// flood-route optimization.
//
// It fuses heterogeneous real-time environmental observations (river
// gauges, dam levels, rainfall, text advisories, crowdsourced posts with
// optional imagery) into a time-decaying risk field over a city road
// graph, and answers interactive queries: current risk at a location,
// safest route between two points, nearest evacuation center, and
// natural-language distress handling.
//
// # Core primitives
//
// The root package defines the agent-runtime substrate shared by every
// domain agent:
//
//   - [ACLMessage] / [Performative] — FIPA-ACL style typed messaging
//   - [MessageBus] — per-agent FIFO inboxes
//   - [Scheduler] / [Agent] — fixed-Hz cooperative tick driver
//   - [RoadGraph] — the mutable risk-weighted road network
//   - [RiskAwareAStar] — the risk-penalized shortest-path search
//   - [Mission] / [MissionState] — orchestrator-tracked multi-step requests
//
// Domain agents (collector, scout, hazard fusion, routing, evacuation,
// orchestrator) live in package agents and are built on top of these
// primitives; they are wired together by cmd/masfro-server.
package masfro
