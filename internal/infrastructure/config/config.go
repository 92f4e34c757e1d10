package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "PARCELBRIDGE_"

// Config is the root configuration structure for the parcel bridge.
// Configuration is loaded from YAML or TOML and can be overridden by
// environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge" toml:"bridge"`
	MQTT     MQTTConfig     `yaml:"mqtt" toml:"mqtt"`
	TCP      TCPConfig      `yaml:"tcp" toml:"tcp"`
	Serial   SerialConfig   `yaml:"serial" toml:"serial"`
	Voice    VoiceConfig    `yaml:"voice" toml:"voice"`
	Alert    AlertConfig    `yaml:"alert" toml:"alert"`
	API      APIConfig      `yaml:"api" toml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb" toml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// BridgeConfig identifies this bridge instance.
type BridgeConfig struct {
	ID string `yaml:"id" toml:"id"`

	// HealthInterval is the health publish period in seconds. 0 disables it.
	HealthInterval int `yaml:"health_interval" toml:"health_interval"`

	// EventBuffer bounds the queue of inbound broker messages.
	EventBuffer int `yaml:"event_buffer" toml:"event_buffer"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker" toml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth" toml:"auth"`
	QoS       int                 `yaml:"qos" toml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect" toml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics" toml:"topics"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay" toml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts" toml:"max_attempts"`
}

// MQTTTopicsConfig names the topics the bridge uses.
type MQTTTopicsConfig struct {
	// Inbound receives actions from the backend.
	Inbound string `yaml:"inbound" toml:"inbound"`
	// Outbound carries parcel records and lookup requests.
	Outbound string `yaml:"outbound" toml:"outbound"`
	// Status carries the retained online/offline payload and the LWT.
	Status string `yaml:"status" toml:"status"`
	// Health carries retained periodic health reports.
	Health string `yaml:"health" toml:"health"`
}

// TCPConfig contains the single-client relay server settings.
type TCPConfig struct {
	Host           string `yaml:"host" toml:"host"`
	Port           int    `yaml:"port" toml:"port"`
	ReadBufferSize int    `yaml:"read_buffer_size" toml:"read_buffer_size"`
	Ack            string `yaml:"ack" toml:"ack"`
	// WriteTimeout bounds one Send, in milliseconds.
	WriteTimeout int `yaml:"write_timeout" toml:"write_timeout"`
}

// SerialConfig contains the controller board UART settings.
type SerialConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Port     string `yaml:"port" toml:"port"`
	BaudRate int    `yaml:"baud_rate" toml:"baud_rate"`
	DataBits int    `yaml:"data_bits" toml:"data_bits"`
	// Parity is one of "N", "O", "E", "M", "S".
	Parity string `yaml:"parity" toml:"parity"`
	// StopBits is one of "1", "1.5", "2".
	StopBits       string `yaml:"stop_bits" toml:"stop_bits"`
	ReadBufferSize int    `yaml:"read_buffer_size" toml:"read_buffer_size"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms" toml:"read_timeout_ms"`
	PollIntervalMS int    `yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	Greeting       string `yaml:"greeting" toml:"greeting"`
}

// VoiceConfig contains the command matcher settings.
type VoiceConfig struct {
	TriggerPhrase string `yaml:"trigger_phrase" toml:"trigger_phrase"`
	TailMarker    string `yaml:"tail_marker" toml:"tail_marker"`
	// LookupRate is the sustained lookup publish rate per second.
	LookupRate  float64 `yaml:"lookup_rate" toml:"lookup_rate"`
	LookupBurst int     `yaml:"lookup_burst" toml:"lookup_burst"`
}

// AlertConfig is the fixed alert raised for a "not found" notice.
type AlertConfig struct {
	Title   string `yaml:"title" toml:"title"`
	Message string `yaml:"message" toml:"message"`
	Mood    string `yaml:"mood" toml:"mood"`
	Sound   string `yaml:"sound" toml:"sound"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" toml:"enabled"`
	Host     string           `yaml:"host" toml:"host"`
	Port     int              `yaml:"port" toml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts" toml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" toml:"read"`
	Write int `yaml:"write" toml:"write"`
	Idle  int `yaml:"idle" toml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level" toml:"level"`
	Format string            `yaml:"format" toml:"format"`
	Output string            `yaml:"output" toml:"output"`
	File   FileLoggingConfig `yaml:"file" toml:"file"`
}

// FileLoggingConfig contains rotated file logging settings.
// MaxSize is in megabytes, MaxAge in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path" toml:"path"`
	MaxSize    int    `yaml:"max_size" toml:"max_size"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAge     int    `yaml:"max_age" toml:"max_age"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// Load reads configuration from a YAML or TOML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults); ".toml" files are parsed as TOML,
//     everything else as YAML
//  3. Environment variables (override file values)
//
// An empty path skips step 2 and runs on defaults plus environment.
//
// Environment variables follow the pattern: PARCELBRIDGE_SECTION_KEY
// For example: PARCELBRIDGE_MQTT_HOST, PARCELBRIDGE_TCP_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// defaultConfig returns a Config with the values the controller board expects.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "parcel-bridge-01",
			HealthInterval: 30,
			EventBuffer:    64,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "test.mosquitto.org",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			Topics: MQTTTopicsConfig{
				Inbound:  "topic/esp32_rx",
				Outbound: "topic/esp32_tx",
				Status:   "topic/esp32_status",
				Health:   "topic/esp32_health",
			},
		},
		TCP: TCPConfig{
			Host:           "0.0.0.0",
			Port:           5000,
			ReadBufferSize: 128,
			Ack:            "Received ok!!!",
			WriteTimeout:   2000,
		},
		Serial: SerialConfig{
			Enabled:        true,
			Port:           "/dev/ttyUSB0",
			BaudRate:       115200,
			DataBits:       8,
			Parity:         "N",
			StopBits:       "1",
			ReadBufferSize: 128,
			ReadTimeoutMS:  20,
			PollIntervalMS: 10,
			Greeting:       "AppCar Init OK\n",
		},
		Voice: VoiceConfig{
			TriggerPhrase: "我要转圈啦",
			TailMarker:    "尾号",
			LookupRate:    1,
			LookupBurst:   3,
		},
		Alert: AlertConfig{
			Title:   "错误",
			Message: "手机尾号不正确，请输入正确的手机尾号",
			Mood:    "sad",
			Sound:   "exclamation",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "parcelbridge",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/parcelbridge.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
				Compress:   true,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. A numeric variable that does not parse is an error.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		v := os.Getenv(EnvPrefix + key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %q is not an integer", EnvPrefix, key, v))
			return
		}
		*dst = n
	}

	// Bridge
	setString("BRIDGE_ID", &cfg.Bridge.ID)

	// MQTT
	setString("MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("MQTT_CLIENT_ID", &cfg.MQTT.Broker.ClientID)
	setString("MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// TCP
	setInt("TCP_PORT", &cfg.TCP.Port)

	// Serial
	setString("SERIAL_PORT", &cfg.Serial.Port)
	setInt("SERIAL_BAUD_RATE", &cfg.Serial.BaudRate)

	// API
	setString("API_HOST", &cfg.API.Host)
	setInt("API_PORT", &cfg.API.Port)

	// InfluxDB
	setString("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	setString("LOG_LEVEL", &cfg.Logging.Level)

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 0 {
		errs = append(errs, "bridge.health_interval must not be negative")
	}

	// MQTT
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if !validPort(c.MQTT.Broker.Port) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.Inbound == "" || c.MQTT.Topics.Outbound == "" {
		errs = append(errs, "mqtt.topics.inbound and mqtt.topics.outbound are required")
	}
	if c.MQTT.Topics.Status != "" && c.MQTT.Topics.Status == c.MQTT.Topics.Outbound {
		errs = append(errs, "mqtt.topics.status must differ from mqtt.topics.outbound")
	}
	if h := c.MQTT.Topics.Health; h != "" && (h == c.MQTT.Topics.Outbound || h == c.MQTT.Topics.Status) {
		errs = append(errs, "mqtt.topics.health must differ from mqtt.topics.outbound and mqtt.topics.status")
	}

	// TCP
	if !validPort(c.TCP.Port) {
		errs = append(errs, "tcp.port must be between 1 and 65535")
	}
	if c.TCP.ReadBufferSize < 1 {
		errs = append(errs, "tcp.read_buffer_size must be positive")
	}

	// Serial
	if c.Serial.Enabled {
		if c.Serial.Port == "" {
			errs = append(errs, "serial.port is required when serial is enabled")
		}
		if c.Serial.BaudRate <= 0 {
			errs = append(errs, "serial.baud_rate must be positive")
		}
		if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
			errs = append(errs, "serial.data_bits must be between 5 and 8")
		}
		if !strings.Contains("NOEMS", strings.ToUpper(c.Serial.Parity)) || len(c.Serial.Parity) != 1 {
			errs = append(errs, "serial.parity must be one of N, O, E, M, S")
		}
		switch c.Serial.StopBits {
		case "1", "1.5", "2":
		default:
			errs = append(errs, "serial.stop_bits must be 1, 1.5, or 2")
		}
		if c.Serial.ReadTimeoutMS <= 0 {
			errs = append(errs, "serial.read_timeout_ms must be positive")
		}
	}

	// Voice
	if c.Voice.TriggerPhrase == "" || c.Voice.TailMarker == "" {
		errs = append(errs, "voice.trigger_phrase and voice.tail_marker are required")
	}
	if c.Voice.LookupRate <= 0 || c.Voice.LookupBurst < 1 {
		errs = append(errs, "voice.lookup_rate and voice.lookup_burst must be positive")
	}

	// API
	if c.API.Enabled && !validPort(c.API.Port) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Logging
	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetHealthInterval returns the health publish period.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// TCPAddr returns the relay listen address in host:port form.
func (c *Config) TCPAddr() string {
	return fmt.Sprintf("%s:%d", c.TCP.Host, c.TCP.Port)
}
