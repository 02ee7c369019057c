// Package config loads and validates Bulb Relay Core configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by environment variables:
//
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern BULBRELAY_SECTION_KEY, for
// example BULBRELAY_MQTT_HOST or BULBRELAY_INFLUXDB_TOKEN.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Dispatch.MinInterval())
package config
