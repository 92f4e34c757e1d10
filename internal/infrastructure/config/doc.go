// Package config handles loading and validating parcel bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML or TOML files
//   - Overriding with PARCELBRIDGE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Defaults match the deployed station hardware: TCP port 5000 with a
// 128-byte read buffer, 115200 8N1 serial with a 20ms read timeout, and the
// topic/esp32_rx and topic/esp32_tx topics on test.mosquitto.org.
//
// Security Considerations:
//   - Broker credentials and the InfluxDB token should be set via environment
//     variables (or a .env file loaded by the binary)
//
// Usage:
//
//	cfg, err := config.Load("configs/parcelbridge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.TCPAddr())
package config
