package testutil

import (
	"time"

	"github.com/xelth-com/datalake/internal/config"
)

// SyncConfig returns a small, fast sync configuration: single-page
// collections, no entity delay, hour-long schedules
func SyncConfig(conns ...config.ConnectionConfig) *config.SyncConfig {
	return &config.SyncConfig{
		IncrementalInterval: time.Hour,
		PeriodicInterval:    time.Hour,
		FullInterval:        time.Hour,
		FreshnessThreshold:  time.Hour,
		TransportPageSize:   10,
		CompanyPageSize:     10,
		DefaultPageSize:     10,
		MaxPages:            2,
		BatchSize:           10,
		RequestInterval:     time.Millisecond,
		RequestTimeout:      time.Second,
		LiveFreshness:       time.Minute,
		ReferenceFreshness:  5 * time.Minute,
		MaxErrors:           50,
		Connections:         conns,
	}
}
