package metrics

import (
	"testing"

	"github.com/miekg/pkcs11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteSignatureIncrementsLabelledCounter(t *testing.T) {
	m := New(prometheus.NewPedanticRegistry())
	m.NoteSignature("leaf", "Test Issuing CA")
	m.NoteSignature("leaf", "Test Issuing CA")
	m.NoteSignature("scepReply", "Test Issuing CA")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.signatureCount.With(prometheus.Labels{"purpose": "leaf", "issuer": "Test Issuing CA"})))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.signatureCount.With(prometheus.Labels{"purpose": "scepReply", "issuer": "Test Issuing CA"})))
}

func TestNoteSignErrorOnlyCountsHSMErrors(t *testing.T) {
	m := New(prometheus.NewPedanticRegistry())
	m.NoteSignError(pkcs11.Error(pkcs11.CKR_GENERAL_ERROR))
	m.NoteSignError(assertPlainError{})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.signErrorCount.WithLabelValues("HSM")))
}

type assertPlainError struct{}

func (assertPlainError) Error() string { return "not an HSM error" }

func TestNoteTransactionLabelsByStatusAndFailInfo(t *testing.T) {
	m := New(prometheus.NewPedanticRegistry())
	m.NoteTransaction("0", "")
	m.NoteTransaction("2", "2")
	m.NoteTransaction("2", "2")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.transactionCount.WithLabelValues("0", "")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.transactionCount.WithLabelValues("2", "2")))
}

func TestNoteLintErrorIncrementsCounter(t *testing.T) {
	m := New(prometheus.NewPedanticRegistry())
	m.NoteLintError()
	m.NoteLintError()
	require.Equal(t, float64(2), testutil.ToFloat64(m.lintErrorCount))
}
