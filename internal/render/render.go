// Package render produces the configuration files the provisioners install.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

type Unit struct {
	Description string
	User        string
	Dir         string
	EnvFile     string
	Binary      string
	RestartSec  int
}

// SystemdUnit renders the supervisor unit for the API server.
func SystemdUnit(u Unit) ([]byte, error) {
	if u.RestartSec <= 0 {
		u.RestartSec = 5
	}
	return execute("labapi.service.tmpl", u)
}

type Site struct {
	Upstream string
	AppAddr  string
	Port     int
}

// NginxSite renders the single-upstream proxy site.
func NginxSite(s Site) ([]byte, error) {
	if s.Upstream == "" {
		s.Upstream = "app_backend"
	}
	return execute("nginx-site.conf.tmpl", s)
}

// EnvFile renders KEY=value lines sorted by key. Values are double-quoted
// as systemd's EnvironmentFile parser expects.
func EnvFile(vars map[string]string) []byte {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	for _, k := range keys {
		v := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(vars[k])
		fmt.Fprintf(&b, "%s=\"%s\"\n", k, v)
	}
	return b.Bytes()
}

func execute(name string, data any) ([]byte, error) {
	var b bytes.Buffer
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return b.Bytes(), nil
}
