package config

import (
	"github.com/pkg/errors"
	"github.com/zachmann/go-utils/fileutils"
)

// ServerConf configures the http server of the daemon
type ServerConf struct {
	IPListen          string   `yaml:"ip_listen"`
	Port              int      `yaml:"port"`
	TLS               TLSConf  `yaml:"tls"`
	TrustedProxies    []string `yaml:"trusted_proxies"`
	ForwardedIPHeader string   `yaml:"forwarded_ip_header"`
}

// TLSConf configures TLS for the http server
type TLSConf struct {
	Enabled      bool   `yaml:"enabled"`
	RedirectHTTP bool   `yaml:"redirect_http"`
	Cert         string `yaml:"cert"`
	Key          string `yaml:"key"`
}

func (c *ServerConf) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	if !c.TLS.Enabled {
		return nil
	}
	if c.TLS.Cert == "" || c.TLS.Key == "" {
		return errors.New("tls enabled but cert or key not set")
	}
	for _, f := range []string{c.TLS.Cert, c.TLS.Key} {
		if !fileutils.FileExists(f) {
			return errors.Errorf("tls file '%s' does not exist", f)
		}
	}
	return nil
}

var defaultServerConf = ServerConf{
	IPListen: "0.0.0.0",
	Port:     8765,
}
