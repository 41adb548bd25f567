package route

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// unitData holds data for the nginx unit template.
type unitData struct {
	ModuleID      string
	Prefix        string // "/wiki/"
	PrefixNoSlash string // "/wiki"
	HealthPath    string
	Var           string // nginx variable holding host:port
	Fallback      string // named location for resolution failures
	Upstream      string
	Resolver      string
	ResolverValid int
	WebSocket     bool
}

var unitTmpl = template.Must(template.New("unit").Parse(`# Managed by modhost; module {{.ModuleID}}. Do not edit.

location = {{.HealthPath}} {
    auth_basic off;
    resolver {{.Resolver}} valid={{.ResolverValid}}s ipv6=off;
    set ${{.Var}} {{.Upstream}};
    proxy_pass http://${{.Var}}/health;
    proxy_connect_timeout 2s;
    proxy_read_timeout 5s;
    error_page 502 504 = {{.Fallback}};
}

location {{.Prefix}} {
    resolver {{.Resolver}} valid={{.ResolverValid}}s ipv6=off;
    set ${{.Var}} {{.Upstream}};
    rewrite ^{{.PrefixNoSlash}}/(.*)$ /$1 break;
    proxy_pass http://${{.Var}};
    proxy_http_version 1.1;
    proxy_set_header Host $host;
    proxy_set_header X-Real-IP $remote_addr;
    proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
    proxy_set_header X-Forwarded-Proto $scheme;
    proxy_set_header X-Forwarded-Prefix {{.PrefixNoSlash}};
{{- if .WebSocket}}
    proxy_set_header Upgrade $http_upgrade;
    proxy_set_header Connection "upgrade";
    proxy_read_timeout 3600s;
{{- end}}
    error_page 502 504 = {{.Fallback}};
}

location {{.Fallback}} {
    default_type text/plain;
    return 502 "module {{.ModuleID}} is unavailable\n";
}
`))

// upstreamVar returns the nginx variable name for a module.
// nginx variable names allow only letters, digits and underscores, so '_'
// becomes "__" and '-' becomes "_h". Distinct ids always get distinct
// names, and since "_u" never appears in an encoded id, a fallback name
// never equals another module's variable.
func upstreamVar(moduleID string) string {
	var b strings.Builder
	b.WriteString("modhost_upstream_")
	for _, r := range moduleID {
		switch r {
		case '_':
			b.WriteString("__")
		case '-':
			b.WriteString("_h")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Render produces the nginx configuration unit for def. The upstream is
// assigned to a variable so nginx resolves it per request through the
// resolver instead of once at load time.
func Render(def Definition, resolver string, resolverValid time.Duration) ([]byte, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	valid := int(resolverValid / time.Second)
	if valid < 1 {
		valid = 1
	}

	v := upstreamVar(def.ModuleID)
	data := unitData{
		ModuleID:      def.ModuleID,
		Prefix:        def.PathPrefix,
		PrefixNoSlash: strings.TrimSuffix(def.PathPrefix, "/"),
		HealthPath:    def.HealthPath,
		Var:           v,
		Fallback:      "@" + v + "_unavailable",
		Upstream:      def.Upstream(),
		Resolver:      resolver,
		ResolverValid: valid,
		WebSocket:     def.Has(CapabilityWebSocket),
	}

	var buf bytes.Buffer
	if err := unitTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render route for %s: %w", def.ModuleID, err)
	}
	return buf.Bytes(), nil
}
