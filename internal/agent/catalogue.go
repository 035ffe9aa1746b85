package agent

// Command is one allow-listed diagnostic the remote agent can run.
type Command struct {
	Name        string
	Description string
}

// Catalogue lists the commands the planner may select, in prompt order.
var Catalogue = []Command{
	// Logs
	{"journalctl", "Logs do systemd - erros gerais, eventos recentes"},
	{"syslog", "Arquivo /var/log/syslog - log tradicional"},
	{"dmesg", "Mensagens do kernel - hardware, drivers, USB, GPU"},
	{"boot_log", "Log de inicializacao - problemas de boot"},
	// Services
	{"systemctl_list", "Lista servicos do systemd rodando"},
	{"systemctl_failed", "Servicos que falharam"},
	// Resources
	{"disk_usage", "Uso de disco - particoes, espaco livre"},
	{"memory_detailed", "Uso de RAM e swap"},
	{"cpu_usage", "Uso de CPU e load average"},
	{"processes_top", "Processos consumindo mais recursos"},
	// Network
	{"network_info", "Interfaces de rede - IP, MAC, status"},
	{"network_connections", "Conexoes ativas e portas abertas"},
	// System
	{"os_release", "Informacoes do SO - distro, versao"},
	{"debian_version", "Versao especifica do Debian"},
	{"uptime", "Tempo que o sistema esta ligado"},
	// Packages
	{"apt_updates", "Atualizacoes disponiveis"},
	{"dpkg_list", "Pacotes instalados"},
	// Users
	{"logged_users", "Usuarios logados no sistema"},
}

var byName = func() map[string]string {
	m := make(map[string]string, len(Catalogue))
	for _, c := range Catalogue {
		m[c.Name] = c.Description
	}
	return m
}()

// Known reports whether name is in the catalogue.
func Known(name string) bool {
	_, ok := byName[name]
	return ok
}

// Describe returns the description of a catalogue command.
func Describe(name string) string {
	return byName[name]
}

// Names returns the catalogue command names in order.
func Names() []string {
	out := make([]string, len(Catalogue))
	for i, c := range Catalogue {
		out[i] = c.Name
	}
	return out
}

// params returns the extra parameters sent with a command.
func params(name string) map[string]string {
	if name == "journalctl" {
		return map[string]string{"lines": "100"}
	}
	return map[string]string{}
}
