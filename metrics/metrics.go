// Package metrics implements the Metrics ambient component: prometheus
// counters for signing activity, SCEP transaction outcomes, and linting,
// adapted from ca/ca.go's caMetrics/NewCAMetrics with two additions this
// repo's issuance engine needs that the teacher's CA-only metrics didn't:
// a per-transaction-outcome counter, and public note-methods so callers
// outside this package (scep.Engine, certobj.Object's caller) can report
// into it without depending on prometheus directly.
package metrics

import (
	"errors"

	"github.com/miekg/pkcs11"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters shared across the signing and issuance path.
type Metrics struct {
	signatureCount   *prometheus.CounterVec
	signErrorCount   *prometheus.CounterVec
	lintErrorCount   prometheus.Counter
	certificates     *prometheus.CounterVec
	transactionCount *prometheus.CounterVec
}

// New registers and returns a fresh Metrics against stats.
func New(stats prometheus.Registerer) *Metrics {
	signatureCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkicore_signatures",
			Help: "Number of signatures",
		},
		[]string{"purpose", "issuer"})
	stats.MustRegister(signatureCount)

	signErrorCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pkicore_signature_errors",
		Help: "A counter of signature errors labelled by error type",
	}, []string{"type"})
	stats.MustRegister(signErrorCount)

	lintErrorCount := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pkicore_lint_errors",
			Help: "Number of issuances that were halted by linting errors",
		})
	stats.MustRegister(lintErrorCount)

	certificates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkicore_certificates",
			Help: "Number of certificates issued",
		},
		[]string{"profile"})
	stats.MustRegister(certificates)

	transactionCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkicore_scep_transactions",
			Help: "Number of SCEP transactions, labelled by outcome",
		},
		[]string{"pkiStatus", "failInfo"})
	stats.MustRegister(transactionCount)

	return &Metrics{signatureCount, signErrorCount, lintErrorCount, certificates, transactionCount}
}

// NoteSignError counts a signing failure under the "HSM" label when err
// wraps a pkcs11.Error, exactly as ca/ca.go's noteSignError does; any other
// error is not counted.
func (m *Metrics) NoteSignError(err error) {
	var pkcs11Error pkcs11.Error
	if errors.As(err, &pkcs11Error) {
		m.signErrorCount.WithLabelValues("HSM").Inc()
	}
}

// NoteSignature records a completed signature, labelled by purpose
// ("leaf", "scepReply", ...) and issuer name.
func (m *Metrics) NoteSignature(purpose, issuer string) {
	m.signatureCount.With(prometheus.Labels{"purpose": purpose, "issuer": issuer}).Inc()
}

// NoteCertificateIssued records one issued certificate under profile.
func (m *Metrics) NoteCertificateIssued(profile string) {
	m.certificates.With(prometheus.Labels{"profile": profile}).Inc()
}

// NoteLintError records one issuance halted by a linting failure.
func (m *Metrics) NoteLintError() {
	m.lintErrorCount.Inc()
}

// NoteTransaction records one completed SCEP transaction, labelled by its
// wire-level pkiStatus and (for a Failure) failInfo, per spec §4.7.
// failInfo should be passed as "" for a non-Failure outcome.
func (m *Metrics) NoteTransaction(pkiStatus, failInfo string) {
	m.transactionCount.With(prometheus.Labels{"pkiStatus": pkiStatus, "failInfo": failInfo}).Inc()
}
