// Parcel Bridge - parcel station relay between a TCP client, MQTT and a
// serial controller board.
//
// Records arriving from the TCP client are published to the broker and
// announced on the serial link; broker actions become serial status lines or
// operator alerts; serial data is forwarded back to the TCP client.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nerrad567/parcel-bridge/internal/api"
	"github.com/nerrad567/parcel-bridge/internal/bridges/parcel"
	"github.com/nerrad567/parcel-bridge/internal/infrastructure/config"
	"github.com/nerrad567/parcel-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/parcel-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/parcel-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/parcel-bridge/internal/relay"
	"github.com/nerrad567/parcel-bridge/internal/uart"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// configEnvVar names the config file when --config is not given.
const configEnvVar = config.EnvPrefix + "CONFIG"

// errVersionRequested stops run after printing the version.
var errVersionRequested = errors.New("version requested")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:])
	if errors.Is(err, errVersionRequested) || errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath  string
	envFile     string
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var opts options

	flags := pflag.NewFlagSet("parcelbridge", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv(configEnvVar),
		"path to a YAML or TOML config file (defaults only when empty)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config; missing is fine")
	flags.BoolVarP(&opts.showVersion, "version", "v", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// loadEnvFile loads a dotenv file without overriding variables already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("parcelbridge %s (commit %s, built %s)\n", version, commit, date)
		return errVersionRequested
	}

	if err := loadEnvFile(opts.envFile); err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting parcel bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	// Connect to MQTT broker
	mqttClient, err := mqtt.ConnectWithLogger(cfg.MQTT, log)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	// Connect to InfluxDB (optional)
	var telemetry parcel.Telemetry
	influxClient, err := influxdb.Connect(ctx, influxdb.FromConfig(cfg.InfluxDB, cfg.Bridge.ID))
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	relayServer := relay.NewServer(relay.FromConfig(cfg.TCP))
	relayServer.SetLogger(log)

	// Open the serial link (optional)
	var (
		serialBridge *uart.Bridge
		serialWriter parcel.SerialWriter
		serialStatus api.SerialStatus
		serialHealth parcel.SerialStatus
	)
	if cfg.Serial.Enabled {
		serialBridge, err = openSerial(cfg.Serial, relayServer, log)
		if err != nil {
			return fmt.Errorf("opening serial link: %w", err)
		}
		defer func() {
			log.Info("closing serial link")
			if closeErr := serialBridge.Close(); closeErr != nil {
				log.Error("error closing serial link", "error", closeErr)
			}
		}()
		serialWriter, serialStatus, serialHealth = serialBridge, serialBridge, serialBridge
	} else {
		log.Info("serial link disabled")
	}

	bridge, err := parcel.NewBridge(parcel.BridgeOptions{
		Config:     parcel.ConfigFrom(cfg),
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Serial:     serialWriter,
		Telemetry:  telemetry,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating parcel bridge: %w", err)
	}
	relayServer.SetHandler(bridge)
	mqttClient.SetOnConnect(bridge.HandleConnect)
	mqttClient.SetOnDisconnect(bridge.HandleDisconnect)

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting parcel bridge: %w", err)
	}
	defer func() {
		log.Info("stopping parcel bridge")
		bridge.Stop()
	}()

	if serialBridge != nil {
		if err := serialBridge.Start(ctx); err != nil {
			return fmt.Errorf("starting serial link: %w", err)
		}
	}

	if err := relayServer.Start(ctx); err != nil {
		return fmt.Errorf("starting TCP relay: %w", err)
	}
	defer func() {
		log.Info("stopping TCP relay")
		if closeErr := relayServer.Close(); closeErr != nil {
			log.Error("error closing TCP relay", "error", closeErr)
		}
	}()
	log.Info("TCP relay listening", "address", relayServer.Addr().String())

	// Health reporting (optional)
	if interval := cfg.GetHealthInterval(); interval > 0 {
		reporter := parcel.NewHealthReporter(parcel.HealthReporterConfig{
			BridgeID:  cfg.Bridge.ID,
			Version:   version,
			Topic:     cfg.MQTT.Topics.Health,
			Interval:  interval,
			Publisher: mqttClient,
			Relay:     relayServer,
			Serial:    serialHealth,
			Bridge:    bridge,
			Telemetry: telemetry,
		})
		reporter.SetLogger(log)
		reporter.Start(ctx)
		defer reporter.Stop()
	}

	// HTTP API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Bridge:  bridge,
			Relay:   relayServer,
			Serial:  serialStatus,
			Broker:  mqttClient,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr = apiServer.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// openSerial opens the serial device and wraps it in a bridge that forwards
// received data to fwd.
func openSerial(cfg config.SerialConfig, fwd uart.Forwarder, log *logging.Logger) (*uart.Bridge, error) {
	serialCfg := uart.FromConfig(cfg)

	port, err := uart.Open(serialCfg)
	if err != nil {
		return nil, err
	}

	b, err := uart.NewBridge(uart.Options{
		Port:      port,
		Config:    serialCfg,
		Forwarder: fwd,
		Logger:    log,
	})
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	log.Info("serial link opened",
		"port", serialCfg.Name,
		"baud_rate", cfg.BaudRate,
	)
	return b, nil
}

// healthCheck verifies the infrastructure connections.
// influxClient may be nil when telemetry is disabled.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the parcel
// bridge's MQTTClient interface. The difference is the Subscribe handler
// signature:
//   - Infrastructure mqtt: func(topic string, payload []byte) error
//   - Parcel bridge: func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements parcel.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// PublishWithID implements parcel.MQTTClient.
func (a *mqttBridgeAdapter) PublishWithID(topic string, payload []byte, qos byte, retained bool) (uint16, error) {
	return a.client.PublishWithID(topic, payload, qos, retained)
}

// Subscribe implements parcel.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements parcel.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
