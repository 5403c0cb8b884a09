// Command ocspd serves the OCSP and RTCS validity-check protocol sessions
// (spec §4.6) over HTTP: RFC 6960 OCSP at /ocsp and this tree's own RTCS
// wire format (ocspproto.EncodeRTCSRequest/DecodeRTCSResponse) at /rtcs,
// both backed by the same certstore.Store a scepd deployment issues
// certificates into.
//
// Grounded on the same cobra root-command shape as cmd/scepd, itself
// grounded on _examples/cert-manager-cmctl/cmd/cmd.go and
// pkg/uninstall/uninstall.go.
package main

import (
	"crypto/x509"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aox/pkicore/certstore"
	"github.com/aox/pkicore/log"
	"github.com/aox/pkicore/metrics"
	"github.com/aox/pkicore/ocspproto"
	"github.com/aox/pkicore/web"
)

type options struct {
	issuerCertPath    string
	issuerKeyPath     string
	responderCertPath string

	mysqlDSN    string
	validity    time.Duration
	listenAddr  string
	metricsAddr string

	pkcs11Module     string
	pkcs11TokenLabel string
	pkcs11PIN        string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "ocspd",
		Short: "Serve OCSP and RTCS validity-check responders over HTTP",
		Long: "ocspd answers RFC 6960 OCSP requests at /ocsp and this tree's\n" +
			"RTCS requests at /rtcs, both against the same certstore.Store a\n" +
			"scepd deployment records issued and revoked certificates into.",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceErrors:     true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.issuerCertPath, "issuer-cert", "", "path to the issuing CA's PEM certificate (required)")
	flags.StringVar(&opts.issuerKeyPath, "issuer-key", "", "path to the OCSP signer's PEM private key (ignored if --pkcs11-module is set)")
	flags.StringVar(&opts.responderCertPath, "responder-cert", "", "path to a delegated OCSP responder certificate; empty signs as the issuer itself")
	flags.StringVar(&opts.mysqlDSN, "mysql-dsn", "", "MySQL DSN for the validity-status store; must match the scepd deployment's --mysql-dsn to see its issuance records; empty uses an in-memory store")
	flags.DurationVar(&opts.validity, "validity", time.Hour, "how long a signed OCSP response is valid for before a client must re-query")
	flags.StringVar(&opts.listenAddr, "listen", ":8098", "address to serve OCSP/RTCS requests on")
	flags.StringVar(&opts.metricsAddr, "metrics-listen", ":8099", "address to serve Prometheus metrics on")
	flags.StringVar(&opts.pkcs11Module, "pkcs11-module", "", "path to a PKCS#11 module; when set the signer is loaded from the token instead of --issuer-key")
	flags.StringVar(&opts.pkcs11TokenLabel, "pkcs11-token-label", "", "PKCS#11 token label holding the signer key")
	flags.StringVar(&opts.pkcs11PIN, "pkcs11-pin", "", "PKCS#11 user PIN")

	return cmd
}

func run(opts *options) error {
	if opts.issuerCertPath == "" {
		return fmt.Errorf("ocspd: --issuer-cert is required")
	}

	issuerCert, err := loadCert(opts.issuerCertPath)
	if err != nil {
		return err
	}
	var responderCert *x509.Certificate
	if opts.responderCertPath != "" {
		responderCert, err = loadCert(opts.responderCertPath)
		if err != nil {
			return err
		}
	}
	signer, err := loadSigner(opts.issuerKeyPath, opts.pkcs11Module, opts.pkcs11TokenLabel, opts.pkcs11PIN, issuerCert.PublicKey)
	if err != nil {
		return err
	}

	store, err := buildStore(opts.mysqlDSN)
	if err != nil {
		return err
	}

	ocspResponder := &ocspproto.Responder{
		IssuerCert:    issuerCert,
		ResponderCert: responderCert,
		Signer:        signer,
		Store:         ocspproto.NewCertStoreLookup(store, issuerCert.RawSubject),
		Validity:      opts.validity,
	}
	rtcsResponder := &ocspproto.RTCSResponder{
		Store: ocspproto.NewHashCertStoreLookup(store),
	}

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.New(registry)
	logger := log.New("ocspd")

	server := &ocspServer{ocsp: ocspResponder, rtcs: rtcsResponder, metrics: engineMetrics}
	mux := http.NewServeMux()
	mux.Handle("/ocsp", web.NewTopHandler(logger, server.ocspHandler()))
	mux.Handle("/rtcs", web.NewTopHandler(logger, server.rtcsHandler()))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(opts.metricsAddr, metricsMux); err != nil {
			logger.Errf("metrics listener stopped: %v", err)
		}
	}()

	logger.Infof("ocspd listening on %s (metrics on %s)", opts.listenAddr, opts.metricsAddr)
	return http.ListenAndServe(opts.listenAddr, mux)
}

// buildStore picks the certstore.Store implementation named by mysqlDSN,
// the same selection cmd/scepd's own buildStore makes -- pointed at the
// same DSN, an ocspd deployment sees the issuance records a scepd
// deployment writes.
func buildStore(mysqlDSN string) (certstore.Store, error) {
	if mysqlDSN == "" {
		return certstore.NewMemory(), nil
	}
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, fmt.Errorf("ocspd: opening --mysql-dsn: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ocspd: connecting to --mysql-dsn: %w", err)
	}
	return certstore.NewSQLStore(db), nil
}
