package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pior/hotrod"
	"github.com/pior/hotrod/internal/hotrodtest"
	"github.com/pior/hotrod/promexporter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version  = "dev"
	revision = "none"
)

// CLI represents command line options
type CLI struct {
	Version     kong.VersionFlag `kong:"short='v',help='Show version and exit.'"`
	Addr        string           `kong:"short='a',default='127.0.0.1:11222',help='Hot Rod server address',env='HOTROD_ADDR'"`
	Cache       string           `kong:"short='c',optional,help='Cache name, empty for the default cache',env='HOTROD_CACHE'"`
	LogLevel    string           `kong:"short='l',default='warn',enum='debug,info,warn,error',help='Log level',env='HOTROD_LOG_LEVEL'"`
	MetricsAddr string           `kong:"optional,help='Serve Prometheus metrics on this address',env='HOTROD_METRICS_ADDR'"`
	Timeout     time.Duration    `kong:"default='5s',help='Timeout of each operation'"`
	Embedded    bool             `kong:"help='Start an in-process server and connect to it instead of --addr'"`

	Repl   ReplCmd   `kong:"cmd,default='1',help='Interactive shell (default)'"`
	Get    GetCmd    `kong:"cmd,help='Get a value'"`
	Put    PutCmd    `kong:"cmd,help='Store a value'"`
	Remove RemoveCmd `kong:"cmd,help='Remove a key'"`
	Ping   PingCmd   `kong:"cmd,help='Ping the server'"`
	Stats  StatsCmd  `kong:"cmd,help='Show server statistics of the cache'"`
	Bulk   BulkCmd   `kong:"cmd,help='Dump entries of the cache'"`
	Bench  BenchCmd  `kong:"cmd,help='Run a load benchmark'"`
}

// app is shared by the commands.
type app struct {
	cli    *CLI
	addr   string
	logger *zap.Logger
	out    io.Writer
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("hotrod-cli"),
		kong.Description("Command line client for Hot Rod servers"),
		kong.Vars{"version": fmt.Sprintf("%s (%s)", version, revision)},
		kong.UsageOnError(),
	)

	logger, err := newLogger(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	a := &app{cli: &cli, addr: cli.Addr, logger: logger, out: os.Stdout}

	if cli.Embedded {
		server, err := hotrodtest.Start()
		if err != nil {
			logger.Fatal("failed to start embedded server", zap.Error(err))
		}
		defer server.Close()

		a.addr = server.Addr()
		logger.Info("embedded server started", zap.String("addr", a.addr))
	}

	kctx.FatalIfErrorf(kctx.Run(a))
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	return config.Build()
}

// dial connects a client to the configured server and cache.
func (a *app) dial(ctx context.Context) (*hotrod.RemoteCache, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cli.Timeout)
	defer cancel()

	return hotrod.Dial(ctx, a.addr, hotrod.Config{
		CacheName: a.cli.Cache,
		Logger:    a.logger,
	})
}

// serveMetrics exposes the clients counters in the background when a
// metrics address is configured.
func (a *app) serveMetrics(clients ...*hotrod.RemoteCache) {
	if a.cli.MetricsAddr == "" {
		return
	}

	sources := make([]promexporter.StatsSource, len(clients))
	for i, client := range clients {
		sources[i] = client
	}
	exporter := promexporter.NewExporter(sources...)

	go func() {
		a.logger.Info("serving metrics", zap.String("addr", a.cli.MetricsAddr))
		if err := exporter.ServeHTTP(a.cli.MetricsAddr); err != nil {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// opContext bounds a single operation.
func (a *app) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.cli.Timeout)
}

// withClient runs fn with a connected client, closing it afterwards.
func (a *app) withClient(fn func(ctx context.Context, client *hotrod.RemoteCache)) error {
	client, err := a.dial(context.Background())
	if err != nil {
		return err
	}
	defer client.Close()
	a.serveMetrics(client)

	ctx, cancel := a.opContext()
	defer cancel()

	fn(ctx, client)
	return nil
}

type GetCmd struct {
	Key string `kong:"arg,help='Key to read'"`
}

func (c *GetCmd) Run(a *app) error {
	return a.withClient(func(ctx context.Context, client *hotrod.RemoteCache) {
		a.handleGet(ctx, client, c.Key)
	})
}

type PutCmd struct {
	Key      string        `kong:"arg,help='Key to write'"`
	Value    string        `kong:"arg,help='Value to write'"`
	Lifespan time.Duration `kong:"optional,help='Lifespan of the entry, rounded up to whole seconds'"`
	MaxIdle  time.Duration `kong:"optional,help='Maximum idle time of the entry, rounded up to whole seconds'"`
}

func (c *PutCmd) Run(a *app) error {
	return a.withClient(func(ctx context.Context, client *hotrod.RemoteCache) {
		a.handlePut(ctx, client, hotrod.Item{
			Key:      c.Key,
			Value:    []byte(c.Value),
			Lifespan: c.Lifespan,
			MaxIdle:  c.MaxIdle,
		})
	})
}

type RemoveCmd struct {
	Key string `kong:"arg,help='Key to remove'"`
}

func (c *RemoveCmd) Run(a *app) error {
	return a.withClient(func(ctx context.Context, client *hotrod.RemoteCache) {
		a.handleRemove(ctx, client, c.Key)
	})
}

type PingCmd struct{}

func (c *PingCmd) Run(a *app) error {
	return a.withClient(func(ctx context.Context, client *hotrod.RemoteCache) {
		a.handlePing(ctx, client)
	})
}

type StatsCmd struct{}

func (c *StatsCmd) Run(a *app) error {
	return a.withClient(func(ctx context.Context, client *hotrod.RemoteCache) {
		a.handleStats(ctx, client)
	})
}

type BulkCmd struct {
	Count int `kong:"arg,optional,default='0',help='Maximum number of entries, 0 for all'"`
}

func (c *BulkCmd) Run(a *app) error {
	return a.withClient(func(ctx context.Context, client *hotrod.RemoteCache) {
		a.handleBulk(ctx, client, c.Count)
	})
}

type ReplCmd struct{}

func (c *ReplCmd) Run(a *app) error {
	client, err := a.dial(context.Background())
	if err != nil {
		return err
	}
	defer client.Close()
	a.serveMetrics(client)

	fmt.Fprintln(a.out, "Hot Rod CLI")
	fmt.Fprintln(a.out, "===========")
	fmt.Fprintf(a.out, "Connected to %s", a.addr)
	if a.cli.Cache != "" {
		fmt.Fprintf(a.out, " (cache %q)", a.cli.Cache)
	}
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Type 'help' for available commands.")
	fmt.Fprintln(a.out)

	return a.repl(os.Stdin, client)
}
