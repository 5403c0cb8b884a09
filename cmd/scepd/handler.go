package main

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"go.mozilla.org/pkcs7"

	"github.com/aox/pkicore/scep"
	"github.com/aox/pkicore/web"
)

// scepServer implements RFC 8894's two HTTP operations (GetCACert,
// PKIOperation) against a scep.Engine, the way
// _examples/tasuku-revol-scep's cmd/scepserver wires a PKIMessage engine
// to net/http -- HandleTransaction itself is transport-agnostic (it
// satisfies neither session.Transport nor session.TransactionHandler, see
// DESIGN.md), so this file is the transport.
type scepServer struct {
	engine  *scep.Engine
	caCert  *x509.Certificate
	caChain []*x509.Certificate
}

func (s *scepServer) handler() web.HandlerFunc {
	return func(ctx context.Context, e *web.RequestEvent, w http.ResponseWriter, r *http.Request) {
		e.Endpoint = "/scep"
		switch r.URL.Query().Get("operation") {
		case "GetCACert":
			s.getCACert(e, w, r)
		case "PKIOperation":
			s.pkiOperation(e, w, r)
		default:
			e.AddError("unrecognised SCEP operation %q", r.URL.Query().Get("operation"))
			http.Error(w, "unrecognised operation", http.StatusBadRequest)
		}
	}
}

// getCACert implements RFC 8894 §4.2.1: a bare CA certificate if there is
// no chain, otherwise a degenerate certs-only PKCS#7 carrying the CA
// certificate followed by its chain.
func (s *scepServer) getCACert(e *web.RequestEvent, w http.ResponseWriter, r *http.Request) {
	if len(s.caChain) == 0 {
		w.Header().Set("Content-Type", "application/x-x509-ca-cert")
		_, _ = w.Write(s.caCert.Raw)
		return
	}

	all := append([]byte(nil), s.caCert.Raw...)
	for _, cert := range s.caChain {
		all = append(all, cert.Raw...)
	}
	degenerate, err := pkcs7.DegenerateCertificate(all)
	if err != nil {
		e.AddError("building CA certificate chain response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-x509-ca-ra-cert-chain")
	_, _ = w.Write(degenerate)
}

// pkiOperation implements RFC 8894 §4.2.3: a client's signed, encrypted
// enrolment request, delivered either as a raw POST body or as a base64
// "message" query parameter on a GET.
func (s *scepServer) pkiOperation(e *web.RequestEvent, w http.ResponseWriter, r *http.Request) {
	raw, err := readPKIMessage(r)
	if err != nil {
		e.AddError("reading PKIOperation request: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	outcome, err := s.engine.HandleTransaction(raw)
	if err != nil {
		if errors.Is(err, scep.ErrSilentClose) {
			e.Suppress()
			return
		}
		e.AddError("handling SCEP transaction: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	e.PKIStatus = string(outcome.Status)
	e.FailInfo = string(outcome.FailInfo)
	w.Header().Set("Content-Type", "application/x-pki-message")
	_, _ = w.Write(outcome.Response)
}

func readPKIMessage(r *http.Request) ([]byte, error) {
	if r.Method == http.MethodPost {
		return io.ReadAll(r.Body)
	}
	return base64.StdEncoding.DecodeString(r.URL.Query().Get("message"))
}
