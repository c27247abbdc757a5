package sync

import (
	"errors"
	"time"
)

// Tier is one independently scheduled group of entity syncs
type Tier string

const (
	TierIncremental Tier = "incremental"
	TierPeriodic    Tier = "periodic"
	TierFull        Tier = "full"
	// TierTransports refreshes transports only; manual trigger
	TierTransports Tier = "transports"
)

// Tiers lists every tier accepted by TriggerManualSync
var Tiers = []Tier{TierIncremental, TierPeriodic, TierFull, TierTransports}

// ParseTier validates a tier name
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", ErrUnknownTier
}

// SyncMode selects how much an entity syncer fetches
type SyncMode string

const (
	// ModeIncremental reads a single page and skips unchanged records
	ModeIncremental SyncMode = "incremental"
	// ModeFull walks every page and writes every record
	ModeFull SyncMode = "full"
)

// EntityKind names a mirrored collection
type EntityKind string

const (
	EntityCounters   EntityKind = "counters"
	EntityTransports EntityKind = "transports"
	EntityCompanies  EntityKind = "companies"
	EntityVehicles   EntityKind = "vehicles"
	EntityTrailers   EntityKind = "trailers"
	EntityDrivers    EntityKind = "drivers"
	EntityContacts   EntityKind = "contacts"
	EntityInvoices   EntityKind = "invoices"
	EntityAddresses  EntityKind = "addresses"
)

// EntityKinds in dependency order: reference data before transactional data
var EntityKinds = []EntityKind{
	EntityCounters,
	EntityCompanies,
	EntityVehicles,
	EntityTrailers,
	EntityDrivers,
	EntityContacts,
	EntityTransports,
	EntityInvoices,
	EntityAddresses,
}

// Status of a connection or of one entity kind
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
	StatusPaused  Status = "paused"
)

// TierStep is one entity sync of a tier plan
type TierStep struct {
	Entity EntityKind
	Mode   SyncMode
}

// tierPlans defines the entity order of every tier
var tierPlans = map[Tier][]TierStep{
	TierIncremental: {
		{EntityCounters, ModeIncremental},
		{EntityTransports, ModeIncremental},
	},
	TierPeriodic: {
		{EntityCompanies, ModeFull},
		{EntityVehicles, ModeFull},
		{EntityDrivers, ModeFull},
	},
	TierFull: {
		{EntityCounters, ModeFull},
		{EntityCompanies, ModeFull},
		{EntityVehicles, ModeFull},
		{EntityTrailers, ModeFull},
		{EntityDrivers, ModeFull},
		{EntityContacts, ModeFull},
		{EntityTransports, ModeFull},
		{EntityInvoices, ModeFull},
		{EntityAddresses, ModeFull},
	},
	TierTransports: {
		{EntityTransports, ModeFull},
	},
}

// Plan returns the steps of a tier
func Plan(t Tier) []TierStep {
	return tierPlans[t]
}

// EntityResult is the outcome of one entity sync
type EntityResult struct {
	Entity    EntityKind    `json:"entity"`
	Mode      SyncMode      `json:"mode"`
	Fetched   int           `json:"fetched"`
	Changed   int           `json:"changed"`
	Written   int           `json:"written"`
	Total     int           `json:"total"`
	LastPage  int           `json:"lastPage"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// TierResult summarizes one tier run
type TierResult struct {
	Tier     Tier            `json:"tier"`
	Entities []*EntityResult `json:"entities"`
	Failed   []EntityKind    `json:"failed,omitempty"`
	Duration time.Duration   `json:"duration"`
	APICalls int64           `json:"apiCalls"`
}

// Written sums the records written by every entity of the run
func (r *TierResult) Written() int {
	n := 0
	for _, e := range r.Entities {
		n += e.Written
	}
	return n
}

var (
	ErrAlreadyRunning = errors.New("sync orchestrator already running")
	ErrUnknownTier    = errors.New("unknown sync tier")
	ErrTierInProgress = errors.New("sync tier already in progress")
	ErrUnknownEntity  = errors.New("no syncer for entity")
)
