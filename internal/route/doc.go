// Package route publishes per-module reverse-proxy routes.
//
// Each module gets one nginx configuration unit, <prefix><id>.conf, in a
// routes directory that the main server block includes:
//
//	server {
//	    listen 80;
//	    include /etc/nginx/modhost.d/*.conf;
//	}
//
// A unit holds a location for /<id>/, an unauthenticated exact-match
// location for /<id>/health, and a named fallback location. The upstream
// is stored in a variable so nginx resolves the container name per request
// through the configured resolver; a failed lookup becomes a 502 from the
// fallback location rather than a proxy that refuses to start.
//
// Publisher serializes unit writes with validate and reload through a
// Controller. NginxController runs the configured commands;
// MockController records calls and reload snapshots for tests.
package route
