// Command pkiuserctl manages PKI User Records (spec §4.3/§6): the
// pre-registered end-entity credentials scepd's ProtocolEngine
// authenticates enrolment requests against.
//
// Grounded on the same cobra root/subcommand shape as cmd/scepd, itself
// grounded on _examples/cert-manager-cmctl/cmd/cmd.go and
// pkg/uninstall/uninstall.go.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aox/pkicore/certstore"
	"github.com/aox/pkicore/pkiuser"
	"github.com/aox/pkicore/random"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "pkiuserctl",
		Short:             "Manage PKI User Records backing a scepd deployment",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceErrors:     true,
		SilenceUsage:      true,
	}
	cmd.AddCommand(newRegisterCommand(), newLookupCommand())
	return cmd
}

type storeOptions struct {
	mysqlDSN string
}

func (o *storeOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.mysqlDSN, "mysql-dsn", "", "MySQL DSN for the certificate/PKI-user store; empty uses an in-memory store (register+lookup in the same process only)")
}

func (o *storeOptions) build() (certstore.Store, error) {
	if o.mysqlDSN == "" {
		return certstore.NewMemory(), nil
	}
	db, err := sql.Open("mysql", o.mysqlDSN)
	if err != nil {
		return nil, fmt.Errorf("pkiuserctl: opening --mysql-dsn: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pkiuserctl: connecting to --mysql-dsn: %w", err)
	}
	return certstore.NewSQLStore(db), nil
}

type registerOptions struct {
	storeOptions
	fillSubjectCN    string
	requiredKeyUsage int
}

func newRegisterCommand() *cobra.Command {
	opts := &registerOptions{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Generate a new PKI User Record and print its presentation form",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.fillSubjectCN, "fill-subject-cn", "", "CN issuance should fill in when the request omits one")
	cmd.Flags().IntVar(&opts.requiredKeyUsage, "required-key-usage", 0, "key usage bits issued certificates must carry regardless of the request")
	return cmd
}

func runRegister(opts *registerOptions) error {
	store, err := opts.build()
	if err != nil {
		return err
	}

	pool := random.NewPool()
	userID, err := pool.Bytes(pkiuser.PayloadSize)
	if err != nil {
		return fmt.Errorf("pkiuserctl: generating user ID: %w", err)
	}
	password, err := pool.Bytes(pkiuser.PayloadSize)
	if err != nil {
		return fmt.Errorf("pkiuserctl: generating issue password: %w", err)
	}

	record := &pkiuser.Record{
		UserID:        userID,
		IssuePassword: password,
		ProfileConstraints: pkiuser.ProfileConstraints{
			FillSubjectCN:    opts.fillSubjectCN,
			RequiredKeyUsage: opts.requiredKeyUsage,
		},
	}
	if err := certstore.NewPKIUserStore(store).Register(record); err != nil {
		return fmt.Errorf("pkiuserctl: registering record: %w", err)
	}

	userIDForm, err := pkiuser.Encode(userID)
	if err != nil {
		return fmt.Errorf("pkiuserctl: encoding user ID: %w", err)
	}
	passwordForm, err := pkiuser.Encode(password)
	if err != nil {
		return fmt.Errorf("pkiuserctl: encoding issue password: %w", err)
	}

	fmt.Printf("userID:        %s\n", userIDForm)
	fmt.Printf("issuePassword: %s\n", passwordForm)
	return nil
}

type lookupOptions struct {
	storeOptions
	userID string
}

func newLookupCommand() *cobra.Command {
	opts := &lookupOptions{}
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Look up a PKI User Record by its presentation-form user ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(opts)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.userID, "user-id", "", "presentation form printed by \"register\" (required)")
	return cmd
}

func runLookup(opts *lookupOptions) error {
	if opts.userID == "" {
		return fmt.Errorf("pkiuserctl: --user-id is required")
	}
	store, err := opts.build()
	if err != nil {
		return err
	}

	userID, err := pkiuser.Decode(opts.userID)
	if err != nil {
		return fmt.Errorf("pkiuserctl: decoding --user-id: %w", err)
	}

	record, err := certstore.NewPKIUserStore(store).FindByTransactionID(userID)
	if err != nil {
		return fmt.Errorf("pkiuserctl: looking up record: %w", err)
	}

	fmt.Printf("fillSubjectCN:    %q\n", record.ProfileConstraints.FillSubjectCN)
	fmt.Printf("requiredKeyUsage: %d\n", record.ProfileConstraints.RequiredKeyUsage)
	return nil
}
