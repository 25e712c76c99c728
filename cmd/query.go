package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/GlowingScrewdriver/go-sntp/internal/brand"
	"github.com/GlowingScrewdriver/go-sntp/internal/clock"
	"github.com/GlowingScrewdriver/go-sntp/internal/logging"
	"github.com/GlowingScrewdriver/go-sntp/internal/sntp"
)

const (
	defaultQueryTimeout = 5 * time.Second
	defaultRetryDelay   = time.Second
)

// QueryOptions configures RunQuery. Zero values select defaults.
type QueryOptions struct {
	Server     string
	Network    string // udp, udp4 or udp6
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	SetClock   bool
	Verbose    bool

	Clock  clock.Clock
	Sink   clock.Sink
	Logger *logging.Logger
}

// QueryDefaults fills QueryOptions from the client block of configFile
// (or the default config, if present) and installs the configured logger.
func QueryDefaults(configFile string, debug bool) (QueryOptions, func(), error) {
	cfg, _, err := loadConfig(configFile)
	if err != nil {
		return QueryOptions{}, nil, err
	}
	logger, cleanup, err := setupLogging(cfg, debug)
	if err != nil {
		return QueryOptions{}, nil, err
	}
	return QueryOptions{
		Server:   cfg.Client.Server,
		Timeout:  cfg.Client.TimeoutDuration(),
		Retries:  cfg.Client.Retries,
		SetClock: cfg.Client.SetClock,
		Logger:   logger,
	}, cleanup, nil
}

func (o *QueryOptions) applyDefaults() {
	if o.Network == "" {
		o.Network = "udp"
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultQueryTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Clock == nil {
		o.Clock = &clock.RealClock{}
	}
	if o.Sink == nil {
		o.Sink = clock.SystemSink{}
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
}

// RunQuery performs one SNTP exchange against opts.Server and prints the
// outcome. Transport failures are retried up to opts.Retries times; a
// rejected response is final and returned as an error wrapping its reason.
func RunQuery(ctx context.Context, opts QueryOptions) (*sntp.Result, error) {
	if opts.Server == "" {
		return nil, fmt.Errorf("usage: %s query [-timeout d] [-retries n] [-set] [-v] <server[:port]>", brand.BinaryName)
	}
	opts.applyDefaults()
	target := sntp.WithDefaultPort(opts.Server)
	logger := opts.Logger.WithComponent("ntp-client")

	var (
		res     *sntp.Result
		attempt int
	)
	backoff := retry.WithMaxRetries(uint64(opts.Retries), retry.NewConstant(opts.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		r, err := queryOnce(ctx, logger, target, attempt, opts)
		if err != nil {
			if errors.Is(err, sntp.ErrTransport) {
				return retry.RetryableError(err)
			}
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.Verbose {
		Printer.Fprintln(Out, renderMessage("Request", res.Request))
		Printer.Fprintln(Out, renderMessage("Response", res.Response))
	}
	Printer.Fprintln(Out, renderResult(res))

	if !res.Accepted() {
		return res, fmt.Errorf("response from %s rejected: %w", target, res.Reason)
	}

	if opts.SetClock {
		// the offset holds at T4, not at whatever time it is now
		applied, err := clock.Step(opts.Sink, res.T4.Time(), res.OffsetDuration())
		if err != nil {
			return res, fmt.Errorf("set clock: %w", err)
		}
		logger.Audit("clock_step", "system_clock", map[string]any{
			"server": target,
			"offset": res.Offset,
			"time":   applied.UTC().Format(time.RFC3339Nano),
		})
		Printer.Fprintf(Out, "Clock stepped by %+.6f s\n", res.Offset)
	}
	return res, nil
}

// queryOnce runs a single exchange on a fresh socket.
func queryOnce(ctx context.Context, logger *logging.Logger, target string, attempt int, opts QueryOptions) (*sntp.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	log := logger.WithFields(map[string]any{
		"exchange": uuid.NewString(),
		"server":   target,
		"attempt":  attempt,
	})

	addr, err := sntp.ResolveServer(ctx, opts.Network, target)
	if err != nil {
		log.Warn("Resolve failed", "error", err)
		return nil, fmt.Errorf("%w: resolve %s: %w", sntp.ErrTransport, target, err)
	}

	tr, err := sntp.ListenUDP(opts.Network)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	log.Debug("Sending request", "addr", addr.String())
	res, err := sntp.NewClient(tr, opts.Clock).Sync(ctx, addr)
	if err != nil {
		log.Warn("Exchange failed", "error", err)
		return nil, err
	}
	if !res.Accepted() {
		log.Warn("Response rejected", "reason", res.Reason)
		return res, nil
	}
	log.Info("Response accepted",
		"stratum", res.Response.Stratum(),
		"offset", res.OffsetDuration(),
		"delay", res.DelayDuration())
	return res, nil
}
