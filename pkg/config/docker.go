package config

import (
	"os"
	"sync"
)

// dockerHost is how a container reaches services on the machine running it.
const dockerHost = "host.docker.internal"

// dockerEnvFile is created by the Docker runtime in every container.
var dockerEnvFile = "/.dockerenv"

var inDocker = sync.OnceValue(func() bool {
	_, err := os.Stat(dockerEnvFile)
	return err == nil
})

// IsRunningInDocker reports whether the engine runs inside a container.
func IsRunningInDocker() bool {
	return inDocker()
}

// ResolveHostForDocker points loopback hosts at the container host when the
// engine runs in Docker, so a Postgres or Redis started on the developer's
// machine stays reachable. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, containerised bool) string {
	if !containerised {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return dockerHost
	}
	return host
}
