// Package cmd implements the cctl command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/paroxp/concourse-go-sdk/concourse"
)

// deps are the process-level dependencies, replaced in tests.
type deps struct {
	getenv          func(key string) string
	promptForSecret func(label string, out io.Writer) (string, error)
}

func realDeps() deps {
	return deps{
		getenv:          os.Getenv,
		promptForSecret: promptForSecret,
	}
}

// Execute runs cctl with the process arguments. Interrupts cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRootCommand(realDeps()).ExecuteContext(ctx)
}

type options struct {
	deps deps

	api        string
	username   string
	password   string
	caCert     string
	clientCert string
	clientKey  string
	proxy      string
	insecure   bool
	timeout    time.Duration
	debug      bool
}

func newRootCommand(d deps) *cobra.Command {
	o := &options{deps: d}

	root := &cobra.Command{
		Use:   "cctl",
		Short: "Drive a Concourse CI server from the command line",
		Long: heredoc.Doc(`
			cctl talks to the Concourse API as a local user. It logs in once per
			invocation with the username and password given by flag or environment.

			Every command needs the server URL and the credentials:

			  CONCOURSE_API        server URL, e.g. https://ci.example.com
			  CONCOURSE_USERNAME   local user
			  CONCOURSE_PASSWORD   password; cctl prompts for it when unset
			  CONCOURSE_CA_CERT    PEM bundle to trust instead of the system roots

			Servers that require mutual TLS also need a client certificate, from
			--client-cert/--client-key or CONCOURSE_CLIENT_CERT/CONCOURSE_CLIENT_KEY.
		`),
		SilenceUsage: true,
	}
	o.addFlags(root.PersistentFlags())

	root.AddCommand(
		newLoginCommand(o),
		newInfoCommand(o),
		newTeamsCommand(o),
		newSetTeamCommand(o),
		newDestroyTeamCommand(o),
		newPipelinesCommand(o),
		newGetPipelineCommand(o),
		newSetPipelineCommand(o),
		newDestroyPipelineCommand(o),
		newPausePipelineCommand(o, true),
		newPausePipelineCommand(o, false),
		newBuildsCommand(o),
		newTriggerJobCommand(o),
		newWatchCommand(o),
		newAbortBuildCommand(o),
	)

	return root
}

func (o *options) addFlags(f *pflag.FlagSet) {
	f.StringVarP(&o.api, "api", "a", o.deps.getenv("CONCOURSE_API"), "Concourse URL")
	f.StringVarP(&o.username, "username", "u", o.deps.getenv("CONCOURSE_USERNAME"), "Local user to log in as")
	f.StringVar(&o.password, "password", "", "Password (default $CONCOURSE_PASSWORD, otherwise prompt)")
	f.StringVar(&o.caCert, "ca-cert", o.deps.getenv("CONCOURSE_CA_CERT"), "Path to a PEM CA bundle for the server")
	f.StringVar(&o.clientCert, "client-cert", o.deps.getenv("CONCOURSE_CLIENT_CERT"), "Path to a PEM client certificate for mutual TLS")
	f.StringVar(&o.clientKey, "client-key", o.deps.getenv("CONCOURSE_CLIENT_KEY"), "Path to the PEM key for --client-cert")
	f.StringVar(&o.proxy, "proxy", "", "Proxy URL for all requests (default from HTTPS_PROXY/HTTP_PROXY)")
	f.BoolVarP(&o.insecure, "insecure", "k", false, "Skip TLS certificate verification")
	f.DurationVar(&o.timeout, "timeout", concourse.DefaultTimeout, "Timeout for each API request")
	f.BoolVar(&o.debug, "debug", false, "Log every request to stderr")
}

// run wraps a command body that needs an authenticated client.
func (o *options) run(fn func(cmd *cobra.Command, client *concourse.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		client, flush, err := o.newClient(cmd)
		if err != nil {
			return err
		}
		defer flush()
		return fn(cmd, client)
	}
}

func (o *options) newClient(cmd *cobra.Command) (*concourse.Client, func(), error) {
	if o.api == "" {
		return nil, nil, errors.New("no Concourse URL: set --api or CONCOURSE_API")
	}
	if o.username == "" {
		return nil, nil, errors.New("no username: set --username or CONCOURSE_USERNAME")
	}

	password := o.password
	if password == "" {
		password = o.deps.getenv("CONCOURSE_PASSWORD")
	}
	if password == "" {
		prompted, err := o.deps.promptForSecret("password: ", cmd.ErrOrStderr())
		if err != nil {
			return nil, nil, fmt.Errorf("could not read password: %w", err)
		}
		password = prompted
	}

	cfg := concourse.Config{
		APIEndpoint:        o.api,
		Username:           o.username,
		Password:           password,
		InsecureSkipVerify: o.insecure,
		ClientCertFile:     o.clientCert,
		ClientKeyFile:      o.clientKey,
		Timeout:            o.timeout,
	}

	if o.caCert != "" {
		pem, err := os.ReadFile(o.caCert)
		if err != nil {
			return nil, nil, fmt.Errorf("could not read CA bundle: %w", err)
		}
		cfg.CACertPEM = pem
	}

	if o.proxy != "" {
		proxyURL, err := url.Parse(o.proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, nil, fmt.Errorf("invalid proxy URL %q", o.proxy)
		}
		cfg.Proxy = proxyURL
	}

	logger, flush := newLogger(o.debug, cmd.ErrOrStderr())
	cfg.Logger = logger

	client, err := concourse.New(cfg)
	if err != nil {
		flush()
		return nil, nil, err
	}
	return client, flush, nil
}

// newLogger logs to w. Request-level detail is logged at V(1) and only shown with debug.
func newLogger(debug bool, w io.Writer) (logr.Logger, func()) {
	level := zapcore.InfoLevel
	encoderConfig := zap.NewProductionEncoderConfig()
	if debug {
		level = zapcore.DebugLevel
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	log := zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), level))
	return zapr.NewLogger(log).WithName("cctl"), func() { _ = log.Sync() }
}

func promptForSecret(label string, out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; set --password or CONCOURSE_PASSWORD")
	}
	if _, err := fmt.Fprint(out, label); err != nil {
		return "", err
	}
	password, err := term.ReadPassword(fd)
	// ReadPassword swallows the newline the user typed.
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(password), nil
}
