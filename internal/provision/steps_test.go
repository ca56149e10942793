package provision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func converge(t *testing.T, h *fakeHost, s Step) Status {
	t.Helper()
	st, err := runStep(context.Background(), h, s, nil)
	require.NoError(t, err)
	return st
}

func TestSetLine(t *testing.T) {
	h := newFakeHost()
	h.files["/c"] = []byte("a = 1\n# listen_addresses = 'localhost'  # comment\nb = 2\n")
	s := SetLine("listen", fixed("/c"), listenRe, "listen_addresses = '*'", 0o644)

	require.Equal(t, StatusChanged, converge(t, h, s))
	require.Equal(t, "a = 1\nlisten_addresses = '*'\nb = 2\n", string(h.files["/c"]))
	require.Equal(t, StatusOK, converge(t, h, s))

	// 沒有匹配的行時附加在結尾
	h.files["/c"] = []byte("a = 1")
	require.Equal(t, StatusChanged, converge(t, h, s))
	require.Equal(t, "a = 1\nlisten_addresses = '*'\n", string(h.files["/c"]))
}

func TestLineInFile(t *testing.T) {
	h := newFakeHost()
	h.files["/hba"] = []byte("host all all 192.168.56.0/24   scram-sha-256\n")
	s := LineInFile("hba", fixed("/hba"), "host    all    all    192.168.56.0/24    scram-sha-256", 0o640)
	require.Equal(t, StatusOK, converge(t, h, s))

	h.files["/hba"] = []byte("local all postgres peer")
	require.Equal(t, StatusChanged, converge(t, h, s))
	require.Equal(t, "local all postgres peer\nhost    all    all    192.168.56.0/24    scram-sha-256\n", string(h.files["/hba"]))

	_, err := runStep(context.Background(), h, LineInFile("x", fixed("/missing"), "l", 0o644), nil)
	require.Error(t, err)
}

func TestFileAndBinary(t *testing.T) {
	h := newFakeHost()
	f := File("env", fixed("/etc/labapi/labapi.env"), []byte("A=\"1\"\n"), 0o600)
	require.Equal(t, StatusChanged, converge(t, h, f))
	require.Equal(t, 0o600, int(h.modes["/etc/labapi/labapi.env"]))
	require.Equal(t, StatusOK, converge(t, h, f))

	b := Binary("bin", "/opt/labapi/labctl", []byte("v1"))
	require.Equal(t, StatusChanged, converge(t, h, b))
	require.Equal(t, StatusOK, converge(t, h, b))
	require.Equal(t, StatusChanged, converge(t, h, Binary("bin", "/opt/labapi/labctl", []byte("v2"))))
}

func TestPackages(t *testing.T) {
	h := newFakeHost()
	s := Packages("install", "postgresql", "postgresql-contrib")
	require.Equal(t, StatusChanged, converge(t, h, s))
	require.Equal(t, 1, h.ran("apt-get update"))
	require.Equal(t, StatusOK, converge(t, h, s))
	require.Equal(t, 1, h.ran("apt-get install -y postgresql postgresql-contrib"))

	for _, c := range h.calls {
		if c.Args[0] == "apt-get" {
			require.Equal(t, "noninteractive", c.Env["DEBIAN_FRONTEND"])
			require.True(t, c.Sudo)
		}
	}
}

func TestSymlinkAbsentUserDirectory(t *testing.T) {
	h := newFakeHost()
	h.links[defaultSite] = "/etc/nginx/sites-available/default"

	require.Equal(t, StatusChanged, converge(t, h, Absent("rm", defaultSite)))
	require.Equal(t, StatusOK, converge(t, h, Absent("rm", defaultSite)))

	require.Equal(t, StatusChanged, converge(t, h, Symlink("ln", SiteAvailable, SiteEnabled)))
	require.Equal(t, StatusOK, converge(t, h, Symlink("ln", SiteAvailable, SiteEnabled)))
	h.links[SiteEnabled] = "/elsewhere"
	require.Equal(t, StatusChanged, converge(t, h, Symlink("ln", SiteAvailable, SiteEnabled)))

	require.Equal(t, StatusChanged, converge(t, h, SystemUser("user", "labapi", "/opt/labapi")))
	require.Equal(t, StatusOK, converge(t, h, SystemUser("user", "labapi", "/opt/labapi")))

	require.Equal(t, StatusChanged, converge(t, h, Directory("dir", "/opt/labapi", "labapi", 0o755)))
	require.Equal(t, "labapi 755", h.dirs["/opt/labapi"])
	require.Equal(t, StatusOK, converge(t, h, Directory("dir", "/opt/labapi", "labapi", 0o755)))
}

func TestServices(t *testing.T) {
	h := newFakeHost()
	require.Equal(t, StatusChanged, converge(t, h, ServiceEnabled("nginx")))
	require.Equal(t, StatusOK, converge(t, h, ServiceEnabled("nginx")))
	require.Equal(t, StatusChanged, converge(t, h, ServiceRunning("nginx")))
	require.Equal(t, StatusOK, converge(t, h, ServiceRunning("nginx")))
}

func TestSQLQuoting(t *testing.T) {
	require.Equal(t, `'it''s'`, sqlLiteral("it's"))
	require.Equal(t, `"lab""user"`, sqlIdent(`lab"user`))
}
