package provision

import (
	"three-tier-lab/internal/render"
	"three-tier-lab/internal/topology"
)

const (
	SiteAvailable = "/etc/nginx/sites-available/labapi"
	SiteEnabled   = "/etc/nginx/sites-enabled/labapi"
	defaultSite   = "/etc/nginx/sites-enabled/default"

	stepNginxInstalled = "install nginx"
	stepDropDefault    = "disable default site"
	stepSite           = "write proxy site"
	stepEnableSite     = "enable proxy site"
	stepNginxTest      = "validate nginx config"
	stepRestartNginx   = "restart nginx"
)

// WebPlan puts Nginx in front of the app machine.
func WebPlan(topo *topology.Topology, opts Options) (Plan, error) {
	log := opts.logger()
	site, err := render.NginxSite(render.Site{AppAddr: topo.AppAddr(), Port: topo.Web.Port})
	if err != nil {
		return Plan{}, err
	}

	steps := []Step{
		Packages(stepNginxInstalled, "nginx"),
		Absent(stepDropDefault, defaultSite),
		File(stepSite, fixed(SiteAvailable), site, 0o644),
		Symlink(stepEnableSite, SiteAvailable, SiteEnabled),
		Gate("wait for upstream", tcpProbe(topo.AppAddr()), opts.Policy, log),
		Command(stepNginxTest, "nginx", "-t"),
		Handler(stepRestartNginx, []string{stepDropDefault, stepSite, stepEnableSite}, "systemctl", "restart", "nginx"),
		ServiceEnabled("nginx"),
		ServiceRunning("nginx"),
		Gate("wait for proxy health", httpProbe(topo.WebURL()+"/nginx-health", 200), opts.Policy, log),
		Gate("wait for proxied api health", httpProbe(topo.WebURL()+"/health", 200), opts.Policy, log),
	}
	return Plan{Role: topology.RoleWeb, Steps: steps}, nil
}
