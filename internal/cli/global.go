package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/forcedotcom/sf-fx-bulk/internal/client"
	"github.com/forcedotcom/sf-fx-bulk/internal/config"
	"github.com/forcedotcom/sf-fx-bulk/internal/events"
	"github.com/forcedotcom/sf-fx-bulk/internal/store"
	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	"github.com/forcedotcom/sf-fx-bulk/pkg/log"
	"github.com/forcedotcom/sf-fx-bulk/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

type GlobalOptions struct {
	ConfigFilePath string
	LogLevel       string
	NoLedger       bool
	MetricsFile    string

	cfg *config.Config
	out io.Writer
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: client.DefaultConfigPath(),
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path of the connection config file.")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level. Overrides BULK_LOG_LEVEL.")
	fs.BoolVar(&o.NoLedger, "no-ledger", o.NoLedger, "Do not record jobs in the local job ledger.")
	fs.StringVar(&o.MetricsFile, "metrics-file", o.MetricsFile, "Write request and job metrics to this file on exit.")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewDefault()
	if err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Client.LogLevel = o.LogLevel
	}
	o.cfg = cfg
	o.out = cmd.OutOrStdout()
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

// connection merges the config file, when present, with the environment.
func (o *GlobalOptions) connection() (bulk.Connection, error) {
	c, err := client.ParseConfigFile(o.ConfigFilePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c = client.NewDefault()
	case err != nil:
		return bulk.Connection{}, err
	}

	c.ApplyEnv(o.cfg)
	if err := c.Validate(); err != nil {
		return bulk.Connection{}, fmt.Errorf("%w (run `bulkctl configure` or set BULK_INSTANCE_URL and BULK_ACCESS_TOKEN)", err)
	}
	return c.BulkConnection(), nil
}

// session holds what a command needs to talk to the remote service.
type session struct {
	api         *bulk.Client
	ledger      store.Store
	producer    *events.EventProducer
	log         *zap.Logger
	metricsFile string
}

func (o *GlobalOptions) connect(ctx context.Context) (*session, error) {
	conn, err := o.connection()
	if err != nil {
		return nil, err
	}

	logger := log.InitLog(log.ParseLevel(o.cfg.Client.LogLevel))
	zap.ReplaceGlobals(logger)

	s := &session{log: logger, metricsFile: o.MetricsFile}
	opts := []bulk.Option{
		bulk.WithLogger(logger),
		bulk.WithHTTPClient(client.NewHTTPClientFromConfig(o.cfg)),
		bulk.WithRateLimit(o.cfg.Client.RateLimit, o.cfg.Client.RateBurst),
		bulk.WithIngestConcurrency(o.cfg.Client.IngestConcurrency),
		bulk.WithChunkSizeLimit(o.cfg.Client.ChunkSizeLimit),
	}

	if !o.NoLedger {
		ledger, err := o.openLedger(ctx)
		if err != nil {
			return nil, err
		}
		s.ledger = ledger
		opts = append(opts, bulk.WithJobRecorder(store.NewRecorder(ledger)))
	}

	if o.cfg.Events.Enabled {
		w, err := o.eventWriter()
		if err != nil {
			s.Close()
			return nil, err
		}
		s.producer = events.NewEventProducer(w, events.WithOutputTopic(o.cfg.Events.Topic))
		opts = append(opts, bulk.WithEventProducer(s.producer))
	}

	s.api = bulk.New(conn, opts...)
	return s, nil
}

func (o *GlobalOptions) openLedger(ctx context.Context) (store.Store, error) {
	db, err := store.InitDB(o.cfg)
	if err != nil {
		return nil, fmt.Errorf("opening job ledger: %w", err)
	}
	s := store.NewStore(db)
	if err := s.InitialMigration(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrating job ledger: %w", err)
	}
	return s, nil
}

func (o *GlobalOptions) eventWriter() (events.Writer, error) {
	if o.cfg.Events.File == "" {
		return &events.LogWriter{}, nil
	}
	f, err := os.OpenFile(o.cfg.Events.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening events file: %w", err)
	}
	return events.NewStreamWriter(f), nil
}

// Close drains pending events, closes the ledger and dumps metrics.
func (s *session) Close() error {
	errs := make([]error, 0)
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing event producer: %w", err))
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing job ledger: %w", err))
		}
	}
	if s.metricsFile != "" {
		if err := metrics.WriteToTextfile(s.metricsFile); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
	return utilerrors.NewAggregate(errs)
}

// withSession runs fn against a fresh session and closes it afterwards.
func (o *GlobalOptions) withSession(ctx context.Context, fn func(s *session) error) (err error) {
	s, err := o.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
