// Package config defines configuration for the fwslurp CLI.
//
// Values are layered, later sources winning:
//   - Defaults (three attempts 5s apart, 5s between entries, 1KiB blocks)
//   - YAML configuration file (--config)
//   - Environment variables (FWSLURP_ prefix)
//   - Command-line flags
//
// # File Format
//
//	catalog: https://example.com/fwlist.html
//	destination: s3://firmware?region=eu-west-1
//	sections: [Retail, DECR]
//	entry_delay: 5s
//	block_size: 64KiB
//	max_failures: 2
//	report:
//	  path: report.html
//	history: state/history.db
//	log:
//	  level: info
//	  format: json
//	retry:
//	  attempts: 3
//	  delay: 5s
//	  strategy: exponential
//	  max_delay: 1m
package config
