// Command scepd serves the SCEP-style certificate-issuance engine (spec
// §4.7) over HTTP per RFC 8894, the flagship composition of this tree's
// CryptoEnvelope/IdentifierService/CertObject/SignatureEngine components.
//
// Grounded on _examples/cert-manager-cmctl/cmd/cmd.go for the root cobra
// command shape (Use/Short/Long, CompletionOptions, SilenceUsage/
// SilenceErrors) and pkg/uninstall/uninstall.go for the
// options-struct-plus-Flags() subcommand pattern, since no cmd/ entrypoint
// was retrieved from the teacher repo itself.
package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aox/pkicore/certstore"
	"github.com/aox/pkicore/lint"
	"github.com/aox/pkicore/log"
	"github.com/aox/pkicore/metrics"
	"github.com/aox/pkicore/pkiconfig"
	"github.com/aox/pkicore/random"
	"github.com/aox/pkicore/scep"
	"github.com/aox/pkicore/web"
)

type options struct {
	configPath string
	caCertPath string
	caKeyPath  string
	caChain    string

	listenAddr    string
	metricsAddr   string
	mysqlDSN      string
	lintExclude   []string
	strictLinting bool

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
		Use:   "scepd",
		Short: "Serve a SCEP certificate-issuance engine over HTTP",
		Long: "scepd runs the server side of a SCEP-style certificate-issuance\n" +
			"transaction (RFC 8894's GetCACert and PKIOperation) against a CA\n" +
			"certificate and key, a PKI User Record store, and a validity policy.",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceErrors:     true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "path to a pkiconfig YAML document")
	flags.StringVar(&opts.caCertPath, "ca-cert", "", "path to the CA's PEM certificate (required)")
	flags.StringVar(&opts.caKeyPath, "ca-key", "", "path to the CA's PEM private key (ignored if --pkcs11-module is set)")
	flags.StringVar(&opts.caChain, "ca-chain", "", "path to additional PEM certificates returned alongside the CA certificate")
	flags.StringVar(&opts.listenAddr, "listen", ":8096", "address to serve SCEP requests on")
	flags.StringVar(&opts.metricsAddr, "metrics-listen", ":8097", "address to serve Prometheus metrics on")
	flags.StringVar(&opts.mysqlDSN, "mysql-dsn", "", "MySQL DSN for the certificate/PKI-user store; empty uses an in-memory store")
	flags.StringSliceVar(&opts.lintExclude, "lint-exclude", nil, "zlint names to exclude when --strict-linting is set")
	flags.BoolVar(&opts.strictLinting, "strict-linting", false, "reject issued certificates that fail zlint's baseline checks")
	flags.StringVar(&opts.pkcs11Module, "pkcs11-module", "", "path to a PKCS#11 module; when set the CA key is loaded from the token instead of --ca-key")
	flags.StringVar(&opts.pkcs11TokenLabel, "pkcs11-token-label", "", "PKCS#11 token label holding the CA key")
	flags.StringVar(&opts.pkcs11PIN, "pkcs11-pin", "", "PKCS#11 user PIN")

	return cmd
}

func run(opts *options) error {
	if opts.caCertPath == "" {
		return fmt.Errorf("scepd: --ca-cert is required")
	}

	var doc *pkiconfig.Document
	if opts.configPath != "" {
		raw, err := os.ReadFile(opts.configPath)
		if err != nil {
			return fmt.Errorf("scepd: reading --config: %w", err)
		}
		doc, err = pkiconfig.LoadDocument(raw)
		if err != nil {
			return fmt.Errorf("scepd: parsing --config: %w", err)
		}
	} else {
		doc = &pkiconfig.Document{ValidityDays: 365, SerialPrefix: 0x01}
	}

	caCert, err := loadCACert(opts.caCertPath)
	if err != nil {
		return err
	}
	caChain, err := loadCAChain(opts.caChain)
	if err != nil {
		return err
	}
	caKey, err := loadCAKey(opts.caKeyPath, opts.pkcs11Module, opts.pkcs11TokenLabel, opts.pkcs11PIN, caCert.PublicKey)
	if err != nil {
		return err
	}

	store, err := buildStore(opts.mysqlDSN)
	if err != nil {
		return err
	}

	var linter *lint.Linter
	switch {
	case opts.strictLinting && len(opts.lintExclude) > 0:
		linter = lint.NewExcluding(opts.lintExclude...)
	case opts.strictLinting:
		linter = lint.New()
	}

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.New(registry)
	logger := log.New("scepd")

	engine, err := scep.NewEngine(scep.Config{
		CACert:             caCert,
		CAKey:              caKey,
		CAChain:            caChain,
		ValidityPeriod:     doc.ValidityPeriod(),
		SerialPrefix:       doc.SerialPrefix,
		SideChannelProtect: doc.SideChannelProtect,
		Users:              certstore.NewPKIUserStore(store),
		Log:                logger,
		Rand:               random.NewPool(),
		Metrics:            engineMetrics,
		Linter:             linter,
	})
	if err != nil {
		return fmt.Errorf("scepd: building engine: %w", err)
	}

	server := &scepServer{engine: engine, caCert: caCert, caChain: caChain}
	mux := http.NewServeMux()
	mux.Handle("/scep", web.NewTopHandler(logger, server.handler()))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(opts.metricsAddr, metricsMux); err != nil {
			logger.Errf("metrics listener stopped: %v", err)
		}
	}()

	logger.Infof("scepd listening on %s (metrics on %s)", opts.listenAddr, opts.metricsAddr)
	return http.ListenAndServe(opts.listenAddr, mux)
}

// buildStore picks the certstore.Store implementation named by mysqlDSN: a
// durable SQLStore when set, otherwise an in-memory Memory store.
func buildStore(mysqlDSN string) (certstore.Store, error) {
	if mysqlDSN == "" {
		return certstore.NewMemory(), nil
	}
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, fmt.Errorf("scepd: opening --mysql-dsn: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("scepd: connecting to --mysql-dsn: %w", err)
	}
	return certstore.NewSQLStore(db), nil
}
