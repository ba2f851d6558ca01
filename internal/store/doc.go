// Package store provides local persistence for agentmcp billing using SQLite.
//
// # Architecture
//
// The package exposes two narrow interfaces so consumers depend only on what
// they use:
//
//   - UsageStore: append-only usage records, monthly counts and aggregates
//   - SubscriptionStore: per-user subscription tiers
//
// SQLiteStore implements both in a single struct. MockStore is an in-memory
// implementation for tests that can inject failures on individual calls.
//
// # Time Handling
//
// Timestamps are stored as RFC3339 strings in UTC. Monthly quotas count records
// created at or after MonthStart, the first instant of the UTC calendar month.
//
// # Migrations
//
// Schema creation and migrations run on every open and are idempotent.
package store
