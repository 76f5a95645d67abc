package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
)

// ClientOptions configure the bolt connection
type ClientOptions struct {
	URI      string
	User     string
	Password string
	Database string

	MaxPoolSize        int
	AcquisitionTimeout time.Duration
	// StatementsPerSecond throttles statements sent by this client; zero disables it
	StatementsPerSecond float64
}

// Client executes compiled statements against Neo4j over bolt
type Client struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
	limiter  *rate.Limiter
	routing  *RoutingStrategy
	monitor  *TimeoutMonitor
}

// NewClient connects and verifies connectivity
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.URI == "" || opts.User == "" || opts.Password == "" {
		return nil, errors.ConfigErrorf("neo4j credentials missing: uri=%s, user=%s", opts.URI, opts.User)
	}
	if opts.Database == "" {
		opts.Database = "neo4j"
	}
	if opts.MaxPoolSize <= 0 {
		opts.MaxPoolSize = 50
	}
	if opts.AcquisitionTimeout <= 0 {
		opts.AcquisitionTimeout = 60 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI,
		neo4j.BasicAuth(opts.User, opts.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = opts.MaxPoolSize
			config.ConnectionAcquisitionTimeout = opts.AcquisitionTimeout
			config.MaxConnectionLifetime = time.Hour
			config.ConnectionLivenessCheckTimeout = 5 * time.Second
			config.SocketConnectTimeout = 5 * time.Second
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "failed to create neo4j driver")
	}

	// fail fast on startup
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errors.DatabaseErrorf(err, "failed to connect to neo4j at %s", opts.URI)
	}

	logger := slog.Default().With("component", "neo4j")
	logger.Info("neo4j client connected",
		"uri", opts.URI,
		"user", opts.User,
		"database", opts.Database,
		"max_pool_size", opts.MaxPoolSize)

	c := &Client{
		driver:   driver,
		logger:   logger,
		database: opts.Database,
		routing:  NewRoutingStrategy(),
		monitor:  NewTimeoutMonitor(),
	}
	if opts.StatementsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.StatementsPerSecond), 1)
	}
	return c, nil
}

// Close closes the driver
func (c *Client) Close(ctx context.Context) error {
	if err := c.driver.Close(ctx); err != nil {
		return errors.DatabaseErrorf(err, "failed to close neo4j driver")
	}
	c.logger.Info("neo4j client closed")
	return nil
}

// HealthCheck verifies connectivity and runs a trivial read
func (c *Client) HealthCheck(ctx context.Context) error {
	cfg := GetConfigForOperation(OpHealthCheck)
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return errors.DatabaseErrorf(err, "neo4j health check failed")
	}
	if _, err := ExecuteWithRouting(ctx, c.driver, "RETURN 1 AS ok", nil, RoutingRead, c.database); err != nil {
		return errors.DatabaseErrorf(err, "neo4j health check query failed")
	}
	return nil
}

// Database returns the configured database name
func (c *Client) Database() string { return c.database }

// Driver returns the underlying driver
func (c *Client) Driver() neo4j.DriverWithContext { return c.driver }

// Timeouts returns the per-operation duration statistics
func (c *Client) Timeouts() *TimeoutMonitor { return c.monitor }

// Execute runs stmt as an auto-commit query routed for the given operation.
// Used for schema statements, which cannot share a transaction with writes.
func (c *Client) Execute(ctx context.Context, operation string, stmt cypher.Statement) (*Result, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	cfg := GetConfigForOperation(operation)
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := ExecuteWithRouting(ctx, c.driver, stmt.Text, stmt.Parameters,
		c.routing.GetRoutingForOperation(operation), c.database)
	c.monitor.Observe(operation, cfg.Timeout, time.Since(start), err)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "%s statement failed", operation)
	}
	out := &Result{Counters: convertCounters(res.Summary.Counters())}
	for _, record := range res.Records {
		out.Rows = append(out.Rows, record.AsMap())
	}
	return out, nil
}

// WriteTransaction runs work in a managed write transaction. Transient
// failures are retried by the driver, so work must not mutate state
// outside the transaction.
func (c *Client) WriteTransaction(ctx context.Context, work func(ctx context.Context, tx Executor) error) error {
	return c.transaction(ctx, OpSave, work)
}

// ReadTransaction runs work in a managed read transaction
func (c *Client) ReadTransaction(ctx context.Context, work func(ctx context.Context, tx Executor) error) error {
	return c.transaction(ctx, OpReload, work)
}

func (c *Client) transaction(ctx context.Context, operation string, work func(ctx context.Context, tx Executor) error) error {
	mode := c.routing.GetRoutingForOperation(operation)
	session := SessionWithRouting(ctx, c.driver, mode, c.database)
	defer session.Close(ctx)

	cfg := GetConfigForOperation(operation).WithCustomMetadata("tx_id", uuid.NewString())
	run := func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(ctx, &txExecutor{client: c, tx: tx})
	}

	start := time.Now()
	var err error
	if mode == RoutingWrite {
		_, err = session.ExecuteWrite(ctx, run, cfg.AsNeo4jConfig()...)
	} else {
		_, err = session.ExecuteRead(ctx, run, cfg.AsNeo4jConfig()...)
	}
	elapsed := time.Since(start)
	c.monitor.Observe(operation, cfg.Timeout, elapsed, err)
	c.logger.Debug("transaction finished",
		"operation", operation,
		"duration_ms", elapsed.Milliseconds(),
		"error", err)
	return err
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.DatabaseErrorf(err, "rate limiter")
	}
	return nil
}

type txExecutor struct {
	client *Client
	tx     neo4j.ManagedTransaction
}

func (e *txExecutor) Execute(ctx context.Context, stmt cypher.Statement) (*Result, error) {
	if err := e.client.wait(ctx); err != nil {
		return nil, err
	}
	res, err := e.tx.Run(ctx, stmt.Text, stmt.Parameters)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "statement failed")
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "failed to read statement result")
	}
	summary, err := res.Consume(ctx)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "failed to read statement summary")
	}

	out := &Result{Counters: convertCounters(summary.Counters())}
	for _, record := range records {
		out.Rows = append(out.Rows, record.AsMap())
	}
	e.client.logger.Debug("statement executed",
		"rows", len(out.Rows),
		"nodes_created", out.Counters.NodesCreated,
		"nodes_deleted", out.Counters.NodesDeleted)
	return out, nil
}

func convertCounters(c neo4j.Counters) Counters {
	if c == nil {
		return Counters{}
	}
	return Counters{
		NodesCreated:         c.NodesCreated(),
		NodesDeleted:         c.NodesDeleted(),
		RelationshipsCreated: c.RelationshipsCreated(),
		RelationshipsDeleted: c.RelationshipsDeleted(),
		PropertiesSet:        c.PropertiesSet(),
		LabelsAdded:          c.LabelsAdded(),
		LabelsRemoved:        c.LabelsRemoved(),
		IndexesAdded:         c.IndexesAdded(),
		IndexesRemoved:       c.IndexesRemoved(),
		ConstraintsAdded:     c.ConstraintsAdded(),
		ConstraintsRemoved:   c.ConstraintsRemoved(),
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("neo4j(%s)", c.database)
}
