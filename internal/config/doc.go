// Package config provides configuration types and loading for modhost.
//
// # Host Configuration
//
// The host configuration lives in /etc/modhost/config.toml. Every key is
// optional; missing keys keep the values from Default():
//
//	[ports]
//	from = 9000
//	to = 19999
//	reserved = [9100]
//	reuse_released = false
//
//	[proxy]
//	routes_dir = "/etc/nginx/modhost.d"
//	validate_command = "nginx -t"
//	reload_command = "nginx -s reload"
//	resolver = "127.0.0.11"
//	validate_timeout = "2s"
//	reload_timeout = "500ms"
//
//	[network]
//	name = ""          # discovered from the platform container when empty
//	self = "platform"
//
//	[runtime]
//	start_timeout = "30s"
//
//	[state]
//	dir = "/var/lib/modhost"
//
// # Module Descriptors
//
// Descriptor is the YAML install request for one module. InternalPorts
// parses its port list with the docker nat helpers.
//
// # Validation
//
// Load validates after parsing and rejects unknown keys. Module ids are
// checked with ValidateModuleID before they reach paths, container names
// or nginx configuration.
package config
