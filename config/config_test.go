package config_test

import (
	"os"
	"path/filepath"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkv/capital-works/config"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, ":8080", c.Server.Addr())
	assert.Equal(t, 480*time.Minute, c.JWT.TTL())
	assert.Equal(t, 5, c.RateLimit.UsernameLimit)
	assert.Equal(t, 20, c.RateLimit.IPLimit)
	assert.Equal(t, 300*time.Second, c.RateLimit.Window)
	assert.Equal(t, 24*time.Hour, c.Backup.Interval)
	assert.Equal(t, []string{"RKV SubDiv-1", "RKV SubDiv-2", "RKV SubDiv-3"}, c.Portal.SubDivisions)
	assert.Empty(t, c.Server.TrustedProxies)

	require.Len(t, c.Portal.Templates, 4)
	assert.Equal(t, "Blank", c.Portal.Templates[0].Name)
	assert.Equal(t, "Spill", c.Portal.Templates[1].Values["account_code"])
	assert.Equal(t, "Monthly Repeat", c.Portal.Templates[3].Name)
}

func TestLoad_EnvOverrides(t *testing.T) {
	// GIVEN: Environment overrides
	t.Setenv("CWP_SERVER_PORT", "9090")
	t.Setenv("CWP_JWT_SECRET", "from-env")
	t.Setenv("CWP_RATELIMIT_WINDOW", "1m")

	// WHEN: Loading without a file
	c, err := config.Load("")
	require.NoError(t, err)

	// THEN: The environment wins over defaults
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "from-env", c.JWT.Secret)
	assert.Equal(t, time.Minute, c.RateLimit.Window)
}

func TestLoad_File(t *testing.T) {
	// GIVEN: A YAML file overriding some keys
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 7000
database:
  path: /tmp/works-test.db
portal:
  subdivisions:
    - North Zone
    - South Zone
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	// WHEN: Loading it
	c, err := config.Load(path)
	require.NoError(t, err)

	// THEN: File values apply and the rest keep defaults
	assert.Equal(t, 7000, c.Server.Port)
	assert.Equal(t, "/tmp/works-test.db", c.Database.Path)
	assert.Equal(t, []string{"North Zone", "South Zone"}, c.Portal.SubDivisions)
	assert.Equal(t, 12, c.Security.BcryptCost)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c, err := config.Load("")
	require.NoError(t, err)

	c.Server.Port = 0
	c.JWT.Secret = ""
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestServerConfig_Proxies(t *testing.T) {
	// GIVEN: A CIDR, a bare IPv4 address and a bare IPv6 address
	s := config.ServerConfig{TrustedProxies: []string{"10.0.0.0/8", " 192.0.2.7 ", "::1"}}

	// WHEN: Parsing them
	got, err := s.Proxies()
	require.NoError(t, err)

	// THEN: Bare addresses become single-address prefixes
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.7/32"),
		netip.MustParsePrefix("::1/128"),
	}, got)
}

func TestValidate_RejectsBadTrustedProxy(t *testing.T) {
	c, err := config.Load("")
	require.NoError(t, err)

	c.Server.TrustedProxies = []string{"not-an-ip"}
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.trusted_proxies")
}
