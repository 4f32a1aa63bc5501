package scheduler

// Package scheduler provides scheduled job management for the forecasting
// backend. It handles:
// - Hourly candle sync for all active pairs
// - Nightly full pipeline runs (fetch, preprocess, train, export)
// - Daily serving cache refresh after new models are published
// - Periodic data cleanup
//
// The main scheduler is implemented in jobs.go
