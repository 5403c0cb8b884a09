// Package lint implements the linting step from the Domain Stack: a
// signed certificate's DER is run through zlint before it is released,
// mirroring ca/ca.go's linter.ErrLinting gate on issuance. It lints the
// finished certificate, not a TBSCertificate ahead of signing.
package lint

import (
	"errors"
	"fmt"

	zcryptox509 "github.com/zmap/zcrypto/x509"
	"github.com/zmap/zlint/v3"
	"github.com/zmap/zlint/v3/lint"
	_ "github.com/zmap/zlint/v3/lints" // registers every built-in lint with lint.GlobalRegistry

	"github.com/aox/pkicore/berrors"
)

// ErrLinting marks an error reporting Error- or Fatal-level lint findings,
// as opposed to a failure to parse the certificate (BadData) -- callers
// check errors.Is(err, ErrLinting) to decide whether to note it as a lint
// failure distinct from an ordinary signing error, per ca/ca.go's own
// errors.Is(err, linter.ErrLinting) check.
var ErrLinting = errors.New("lint: certificate failed pre-sign linting")

// Finding is one lint check's result against a to-be-signed certificate.
type Finding struct {
	Source string
	Status string
	Detail string
}

// Linter runs a fixed zlint registry against a DER-encoded, signed
// certificate.
type Linter struct {
	registry lint.Registry
}

// New builds a Linter against zlint's full registry.
func New() *Linter {
	return &Linter{registry: lint.GlobalRegistry()}
}

// NewExcluding builds a Linter against zlint's registry with the named
// lints excluded, for profiles that intentionally violate a baseline
// requirement (private PKI profiles routinely do).
func NewExcluding(excludeNames ...string) *Linter {
	registry, err := lint.GlobalRegistry().Filter(lint.FilterOptions{ExcludeNames: excludeNames})
	if err != nil {
		return &Linter{registry: lint.GlobalRegistry()}
	}
	return &Linter{registry: registry}
}

// Lint parses certDER with zcrypto's x509 (which, unlike the standard
// library's, preserves fields a lint needs to inspect) and reports every
// Error- or Fatal-level finding as an error wrapping ErrLinting; findings
// at lower levels are not reported.
func (l *Linter) Lint(certDER []byte) ([]Finding, error) {
	cert, err := zcryptox509.ParseCertificate(certDER)
	if err != nil {
		return nil, berrors.New(berrors.BadData, "lint: parsing certificate for linting: %v", err)
	}

	result := zlint.LintCertificateEx(cert, l.registry)
	if result == nil {
		return nil, nil
	}

	var findings []Finding
	for name, res := range result.Results {
		if res == nil {
			continue
		}
		switch res.Status {
		case lint.Error, lint.Fatal:
			findings = append(findings, Finding{Source: name, Status: res.Status.String(), Detail: res.Details})
		}
	}
	if len(findings) > 0 {
		return findings, fmt.Errorf("%w: %d lint error(s), first: %s (%s)", ErrLinting, len(findings), findings[0].Source, findings[0].Detail)
	}
	return nil, nil
}
