// Package config loads the chatsync CLI configuration.
//
// # Configuration File
//
// The file is YAML. Every field is optional; missing values fall back to
// Default and command-line flags override what the file sets.
//
//	gateway:
//	  endpoint: "wss://chat.example.com/ws"
//	  api_endpoint: "https://chat.example.com"
//	  handshake_timeout: "10s"
//	auth:
//	  token: "${CHATSYNC_TOKEN}"
//	history:
//	  page_size: 50
//	  limit: 500
//	logging:
//	  level: "info"
//	conversation: "general"
//
// # Environment Variable Expansion
//
// ${VAR_NAME} anywhere in the file is replaced with the variable's value
// before parsing. Unset variables expand to "".
//
// # Duration Parsing
//
// Durations use time.ParseDuration syntax ("500ms", "10s", "1m").
package config
