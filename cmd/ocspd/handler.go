package main

import (
	"context"
	"io"
	"net/http"

	"github.com/aox/pkicore/certobj"
	"github.com/aox/pkicore/metrics"
	"github.com/aox/pkicore/ocspproto"
	"github.com/aox/pkicore/web"
)

// ocspServer implements the HTTP transport for an ocspproto.Responder and
// ocspproto.RTCSResponder, the same role cmd/scepd's scepServer plays for
// scep.Engine -- both protocols are answer-one-request-per-POST shapes
// with no session/Transport fit, so each gets its own bespoke
// net/http.Handler rather than a session.Session adapter.
type ocspServer struct {
	ocsp    *ocspproto.Responder
	rtcs    *ocspproto.RTCSResponder
	metrics *metrics.Metrics
}

func (s *ocspServer) ocspHandler() web.HandlerFunc {
	return func(ctx context.Context, e *web.RequestEvent, w http.ResponseWriter, r *http.Request) {
		e.Endpoint = "/ocsp"
		requestDER, err := readRequestDER(r)
		if err != nil {
			e.AddError("reading OCSP request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		respDER, obj, err := s.ocsp.Respond(requestDER)
		if err != nil {
			e.AddError("answering OCSP request: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if obj != nil && len(obj.ValidityList) > 0 {
			e.PKIStatus = validityStatusLabel(obj.ValidityList[0].Status)
		}
		s.metrics.NoteTransaction(e.PKIStatus, "")
		w.Header().Set("Content-Type", "application/ocsp-response")
		_, _ = w.Write(respDER)
	}
}

func (s *ocspServer) rtcsHandler() web.HandlerFunc {
	return func(ctx context.Context, e *web.RequestEvent, w http.ResponseWriter, r *http.Request) {
		e.Endpoint = "/rtcs"
		requestDER, err := readRequestDER(r)
		if err != nil {
			e.AddError("reading RTCS request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		respDER, obj, err := s.rtcs.Respond(requestDER)
		if err != nil {
			e.AddError("answering RTCS request: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		for _, entry := range obj.ValidityList {
			s.metrics.NoteTransaction(validityStatusLabel(entry.Status), "")
		}
		w.Header().Set("Content-Type", "application/x-rtcs-response")
		_, _ = w.Write(respDER)
	}
}

// readRequestDER reads a POST body whole; GET is not meaningful for either
// protocol here since both requests can exceed typical URL length limits
// once more than a couple of serials/hashes are batched.
func readRequestDER(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

func validityStatusLabel(status certobj.ValidityStatus) string {
	switch status {
	case certobj.StatusGood:
		return "good"
	case certobj.StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}
