package model

// frameworkPorts maps a project's framework to the dev-server port its
// toolchain listens on by default.
var frameworkPorts = map[string]int{
	"nextjs": 3000,
	"remix":  3000,
	"vite":   5173,
	"astro":  4321,
	"static": 8080,
}

// DefaultPort returns the network port for a framework's dev server.
// Unknown frameworks fall back to 3000.
func DefaultPort(framework string) int {
	if port, ok := frameworkPorts[framework]; ok {
		return port
	}
	return 3000
}
