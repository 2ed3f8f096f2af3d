package bind

import (
	"github.com/vulntor/batchq/pkg/config"
	srv "github.com/vulntor/batchq/pkg/server"
)

// BindServerConfig extracts and validates the server section of cfg.
//
// Flags bound by config.BindServerFlags (--server.addr, --server.port, ...)
// have already been merged into cfg by the config manager.
func BindServerConfig(cfg config.Config) (config.ServerConfig, error) {
	sc := cfg.Server
	if sc.Port < 1 || sc.Port > 65535 {
		return config.ServerConfig{}, srv.NewInvalidPortError(sc.Port)
	}
	if sc.ShutdownTimeout <= 0 {
		sc.ShutdownTimeout = config.DefaultServerConfig().ShutdownTimeout
	}
	return sc, nil
}
