// Package topology describes the three lab machines, their private network
// and the service settings every provisioning step derives its work from.
package topology

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Role string

const (
	RoleDB  Role = "db"
	RoleApp Role = "app"
	RoleWeb Role = "web"
)

// provisionOrder is the dependency order: database, application, web.
var provisionOrder = []Role{RoleDB, RoleApp, RoleWeb}

type Topology struct {
	Box      string           `yaml:"box" validate:"required"`
	Network  Network          `yaml:"network"`
	Machines []Machine        `yaml:"machines" validate:"len=3,dive"`
	Database DatabaseSettings `yaml:"database"`
	App      AppSettings      `yaml:"app"`
	Web      WebSettings      `yaml:"web"`
}

type Network struct {
	Subnet string `yaml:"subnet" validate:"required,cidrv4"`
}

type Machine struct {
	Name           string        `yaml:"name" validate:"required,hostname_rfc1123"`
	Hostname       string        `yaml:"hostname" validate:"required,hostname_rfc1123"`
	Role           Role          `yaml:"role" validate:"oneof=db app web"`
	IP             string        `yaml:"ip" validate:"required,ipv4"`
	Memory         int           `yaml:"memory" validate:"min=256"`
	CPUs           int           `yaml:"cpus" validate:"min=1,max=16"`
	ForwardedPorts []PortForward `yaml:"forwarded_ports" validate:"dive"`
	// Provision overrides the command Vagrant runs on first boot.
	Provision string `yaml:"provision,omitempty"`
}

type PortForward struct {
	Host  int `yaml:"host" validate:"min=1,max=65535"`
	Guest int `yaml:"guest" validate:"min=1,max=65535"`
}

type DatabaseSettings struct {
	Name string `yaml:"name" validate:"required"`
	User string `yaml:"user" validate:"required"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

type AppSettings struct {
	Port    int    `yaml:"port" validate:"min=1,max=65535"`
	Workers int    `yaml:"workers" validate:"min=1,max=64"`
	User    string `yaml:"user" validate:"required"`
	Dir     string `yaml:"dir" validate:"required,startswith=/"`
}

type WebSettings struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

// Default returns the lab: web .10, app .11, db .12 on 192.168.56.0/24.
func Default() *Topology {
	return &Topology{
		Box:     "ubuntu/jammy64",
		Network: Network{Subnet: "192.168.56.0/24"},
		Machines: []Machine{
			{Name: "db", Hostname: "db-server", Role: RoleDB, IP: "192.168.56.12", Memory: 1024, CPUs: 1},
			{Name: "app", Hostname: "app-server", Role: RoleApp, IP: "192.168.56.11", Memory: 1024, CPUs: 1},
			{
				Name: "web", Hostname: "web-server", Role: RoleWeb, IP: "192.168.56.10", Memory: 512, CPUs: 1,
				ForwardedPorts: []PortForward{{Host: 8080, Guest: 80}},
			},
		},
		Database: DatabaseSettings{Name: "labdb", User: "labuser", Port: 5432},
		App:      AppSettings{Port: 5000, Workers: 3, User: "labapi", Dir: "/opt/labapi"},
		Web:      WebSettings{Port: 80},
	}
}

var (
	validate   = validator.New()
	identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
)

// Load reads a YAML topology. Keys absent from the file keep their defaults.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Topology, error) {
	t := Default()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	for i := range t.Machines {
		m := &t.Machines[i]
		if m.Hostname == "" {
			m.Hostname = m.Name
		}
		if m.Memory == 0 {
			m.Memory = 1024
		}
		if m.CPUs == 0 {
			m.CPUs = 1
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Topology) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid topology: %w", err)
	}
	if !identifier.MatchString(t.Database.Name) {
		return fmt.Errorf("invalid topology: database name %q is not a plain identifier", t.Database.Name)
	}
	if !identifier.MatchString(t.Database.User) {
		return fmt.Errorf("invalid topology: database user %q is not a plain identifier", t.Database.User)
	}

	_, subnet, _ := net.ParseCIDR(t.Network.Subnet)
	var errs []error
	roles := map[Role]int{}
	names := map[string]bool{}
	ips := map[string]bool{}
	for _, m := range t.Machines {
		roles[m.Role]++
		if names[m.Name] {
			errs = append(errs, fmt.Errorf("duplicate machine name %q", m.Name))
		}
		names[m.Name] = true
		if ips[m.IP] {
			errs = append(errs, fmt.Errorf("duplicate ip %s", m.IP))
		}
		ips[m.IP] = true
		if !subnet.Contains(net.ParseIP(m.IP)) {
			errs = append(errs, fmt.Errorf("machine %s: ip %s outside %s", m.Name, m.IP, t.Network.Subnet))
		}
	}
	for _, r := range provisionOrder {
		if roles[r] != 1 {
			errs = append(errs, fmt.Errorf("need exactly one %s machine, have %d", r, roles[r]))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid topology: %w", errors.Join(errs...))
	}
	return nil
}

// Machine returns the machine with role r.
func (t *Topology) Machine(r Role) (Machine, bool) {
	for _, m := range t.Machines {
		if m.Role == r {
			return m, true
		}
	}
	return Machine{}, false
}

func (t *Topology) mustMachine(r Role) Machine {
	m, ok := t.Machine(r)
	if !ok {
		panic("topology: no " + string(r) + " machine")
	}
	return m
}

// Ordered returns the machines in provisioning order.
func (t *Topology) Ordered() []Machine {
	out := make([]Machine, 0, len(t.Machines))
	for _, r := range provisionOrder {
		if m, ok := t.Machine(r); ok {
			out = append(out, m)
		}
	}
	return out
}

func (t *Topology) DatabaseAddr() string {
	return net.JoinHostPort(t.mustMachine(RoleDB).IP, strconv.Itoa(t.Database.Port))
}

func (t *Topology) AppAddr() string {
	return net.JoinHostPort(t.mustMachine(RoleApp).IP, strconv.Itoa(t.App.Port))
}

// DatabaseURL builds the DSN the application uses. host overrides the db
// machine address (e.g. 127.0.0.1 on the database host itself).
func (t *Topology) DatabaseURL(password, host string) string {
	if host == "" {
		host = t.mustMachine(RoleDB).IP
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(t.Database.User, password),
		Host:   net.JoinHostPort(host, strconv.Itoa(t.Database.Port)),
		Path:   "/" + t.Database.Name,
	}
	return u.String()
}

func (t *Topology) AppURL() string {
	return "http://" + t.AppAddr()
}

func (t *Topology) WebURL() string {
	m := t.mustMachine(RoleWeb)
	if t.Web.Port == 80 {
		return "http://" + m.IP
	}
	return "http://" + net.JoinHostPort(m.IP, strconv.Itoa(t.Web.Port))
}

// ForwardedURL is the web entry point as seen from the Vagrant host, or ""
// when the web machine forwards nothing to the proxy port.
func (t *Topology) ForwardedURL() string {
	for _, pf := range t.mustMachine(RoleWeb).ForwardedPorts {
		if pf.Guest == t.Web.Port {
			return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(pf.Host))
		}
	}
	return ""
}
