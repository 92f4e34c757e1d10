package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/parcel-bridge/internal/infrastructure/config"
)

// Defaults applied to zero Options fields.
const (
	DefaultStatsMeasurement  = "bridge_stats"
	DefaultEventsMeasurement = "bridge_events"
	DefaultBatchSize         = 100
	DefaultFlushInterval     = 10 * time.Second

	pingTimeout = 5 * time.Second
)

var errUnhealthy = errors.New("server not healthy")

// Options configures the telemetry client.
type Options struct {
	// Enabled false makes Connect return ErrDisabled.
	Enabled bool

	URL    string
	Token  string
	Org    string
	Bucket string

	// BridgeID tags every point written.
	BridgeID string

	BatchSize     uint
	FlushInterval time.Duration

	// StatsMeasurement holds per-component counters tagged by component;
	// EventsMeasurement holds one count point per bridge event.
	StatsMeasurement  string
	EventsMeasurement string
}

// FromConfig builds Options from the file configuration. Non-positive batch
// and flush settings fall back to the defaults.
func FromConfig(c config.InfluxDBConfig, bridgeID string) Options {
	o := Options{
		Enabled:  c.Enabled,
		URL:      c.URL,
		Token:    c.Token,
		Org:      c.Org,
		Bucket:   c.Bucket,
		BridgeID: bridgeID,
	}
	if c.BatchSize > 0 {
		o.BatchSize = uint(c.BatchSize)
	}
	if c.FlushInterval > 0 {
		o.FlushInterval = time.Duration(c.FlushInterval) * time.Second
	}
	return o
}

func (o Options) withDefaults() Options {
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.StatsMeasurement == "" {
		o.StatsMeasurement = DefaultStatsMeasurement
	}
	if o.EventsMeasurement == "" {
		o.EventsMeasurement = DefaultEventsMeasurement
	}
	return o
}

// Client writes bridge counters and event counts to InfluxDB v2.
// Writes are batched and never block the caller; all methods are safe for
// concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	opts     Options

	open atomic.Bool

	mu      sync.RWMutex
	onError func(err error)
}

// Connect pings the server and starts the batched writer. The ping is
// bounded by ctx and a five second timeout.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if !opts.Enabled {
		return nil, ErrDisabled
	}
	opts = opts.withDefaults()

	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(opts.BatchSize).
			SetFlushInterval(uint(opts.FlushInterval.Milliseconds())))

	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(opts.Org, opts.Bucket),
		opts:     opts,
	}
	c.open.Store(true)

	go c.drainErrors(c.writeAPI.Errors())
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errUnhealthy
	}
	return nil
}

// drainErrors hands async write failures to the callback. It ends when the
// write API is closed.
func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()

		if cb != nil {
			cb(err)
		}
	}
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(cb func(err error)) {
	c.mu.Lock()
	c.onError = cb
	c.mu.Unlock()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c != nil && c.open.Load()
}

// Close flushes pending points and closes the client. Safe on a nil Client
// and on repeated calls.
func (c *Client) Close() error {
	if c == nil || !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
