// Package metrics counts what provisioning runs did. Collectors live on a
// private registry so a run can be exported as a node-exporter textfile
// without any process-global state.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clonekit"

type Recorder struct {
	reg *prometheus.Registry

	runs             *prometheus.CounterVec
	runDuration      *prometheus.GaugeVec
	accountsVerified prometheus.Counter
	accountsRejected *prometheus.CounterVec
	lookupTables     *prometheus.CounterVec
	verifyWaves      prometheus.Counter
	cloneEntries     prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "runs_total", Help: "Provisioning runs by source and status"},
			[]string{"source", "status"},
		),
		runDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "run_duration_seconds", Help: "Duration of the last provisioning run"},
			[]string{"source"},
		),
		accountsVerified: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "accounts_verified_total", Help: "Accounts confirmed to exist on the reference network"},
		),
		accountsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "accounts_rejected_total", Help: "Accounts left out of the clone list"},
			[]string{"reason"},
		),
		lookupTables: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "lookup_tables_total", Help: "Address lookup tables by resolution result"},
			[]string{"result"},
		),
		verifyWaves: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "verify_waves_total", Help: "Rate-limited verification waves issued"},
		),
		cloneEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "clone_entries", Help: "Clone entries written to Anchor.toml by the last run"},
		),
	}
	r.reg.MustRegister(r.runs, r.runDuration, r.accountsVerified, r.accountsRejected, r.lookupTables, r.verifyWaves, r.cloneEntries)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) Run(source, status string, took time.Duration) {
	r.runs.WithLabelValues(source, status).Inc()
	r.runDuration.WithLabelValues(source).Set(took.Seconds())
}

func (r *Recorder) Verified(n int) { r.accountsVerified.Add(float64(n)) }

func (r *Recorder) Rejected(reason string) { r.accountsRejected.WithLabelValues(reason).Inc() }

func (r *Recorder) LookupTables(resolved, failed int) {
	r.lookupTables.WithLabelValues("resolved").Add(float64(resolved))
	r.lookupTables.WithLabelValues("failed").Add(float64(failed))
}

func (r *Recorder) Waves(n int) { r.verifyWaves.Add(float64(n)) }

func (r *Recorder) CloneEntries(n int) { r.cloneEntries.Set(float64(n)) }

// WriteTextfile writes every collector to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
