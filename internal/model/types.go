package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     *CacheStatus     `json:"cache,omitempty"`
	Partial   bool             `json:"partial"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

// CacheStatus reports how the swap cache served a command: hit, write or
// cleared.
type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

// ProvisionSummary is the data payload of a provisioning run.
type ProvisionSummary struct {
	RunID              string      `json:"run_id"`
	Trader             string      `json:"trader"`
	Source             string      `json:"source"`
	InputMint          string      `json:"input_mint,omitempty"`
	OutputMint         string      `json:"output_mint,omitempty"`
	Amount             string      `json:"amount,omitempty"`
	Candidates         int         `json:"candidates"`
	Verified           int         `json:"verified"`
	Rejected           []Rejection `json:"rejected,omitempty"`
	LookupTables       int         `json:"lookup_tables"`
	LookupTablesFailed []string    `json:"lookup_tables_failed,omitempty"`
	CloneEntries       int         `json:"clone_entries"`
	ConfigChanged      bool        `json:"config_changed"`
	ConfigPath         string      `json:"config_path"`
	CachePath          string      `json:"cache_path"`
	DurationMS         int64       `json:"duration_ms"`
	CacheAgeMS         int64       `json:"cache_age_ms,omitempty"`
	Warnings           []string    `json:"-"`
}

// Rejection explains why an address was left out of the verified set.
type Rejection struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

// CloneEntry is one [[test.validator.clone]] entry as rendered by config show.
type CloneEntry struct {
	Address string `json:"address"`
	Label   string `json:"label,omitempty"`
}
