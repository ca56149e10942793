package topology

import (
	"fmt"
	"io"
	"text/template"
)

// SyncedBinary is where Vagrant's default synced folder exposes labctl
// inside every guest.
const SyncedBinary = "/vagrant/bin/labctl"

var vagrantTmpl = template.Must(template.New("Vagrantfile").Parse(`# -*- mode: ruby -*-
# Generated by labctl topology render. Edit the topology YAML instead.
# LAB_DB_PASSWORD is only needed when provisioning db and app.
lab_env = ENV.key?("LAB_DB_PASSWORD") ? { "LAB_DB_PASSWORD" => ENV["LAB_DB_PASSWORD"] } : {}

Vagrant.configure("2") do |config|
  config.vm.box = {{ printf "%q" .Box }}
{{ range $m := .Machines }}
  config.vm.define "{{ $m.Name }}" do |node|
    node.vm.hostname = "{{ $m.Hostname }}"
    node.vm.network "private_network", ip: "{{ $m.IP }}"
{{- range $m.ForwardedPorts }}
    node.vm.network "forwarded_port", guest: {{ .Guest }}, host: {{ .Host }}
{{- end }}
    node.vm.provider "virtualbox" do |vb|
      vb.memory = "{{ $m.Memory }}"
      vb.cpus = {{ $m.CPUs }}
    end
{{- if $m.NeedsPassword }}
    node.vm.provision "shell", inline: {{ printf "%q" $m.Command }}, env: lab_env
{{- else }}
    node.vm.provision "shell", inline: {{ printf "%q" $m.Command }}
{{- end }}
  end
{{ end -}}
end
`))

type vagrantMachine struct {
	Machine
	Command       string
	NeedsPassword bool
}

// RenderVagrantfile writes a Vagrantfile defining the machines in
// provisioning order. topologyPath is the guest path of the YAML file.
func (t *Topology) RenderVagrantfile(w io.Writer, topologyPath string) error {
	var machines []vagrantMachine
	for _, m := range t.Ordered() {
		cmd := m.Provision
		if cmd == "" {
			cmd = fmt.Sprintf("%s provision %s --topology %s", SyncedBinary, m.Role, topologyPath)
		}
		machines = append(machines, vagrantMachine{
			Machine:       m,
			Command:       cmd,
			NeedsPassword: m.Role == RoleDB || m.Role == RoleApp,
		})
	}
	return vagrantTmpl.Execute(w, struct {
		Box      string
		Machines []vagrantMachine
	}{t.Box, machines})
}
