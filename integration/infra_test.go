//go:build integration

package integration_test

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"

	"github.com/borrowbook/borrowbook/internal/config"
	"github.com/borrowbook/borrowbook/internal/dbtest/valkeytest"
)

type closeFunc func(ctx context.Context)

type infraStat struct {
	ValKeyPort     nat.Port
	ConfigFilePath string
	Procdir        string
	Bindir         string
	Cfg            config.Config

	closeFuncs []closeFunc
}

func initInfra(t *testing.T, name string) (istat infraStat) {
	t.Helper()

	// Since the config is read from the file $PWD/config.yaml,
	// every test runs its processes in a subdirectory of its own.
	wd, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")
	istat.Bindir = wd
	istat.Procdir = filepath.Join(wd, name+"-test")
	istat.ConfigFilePath = filepath.Join(istat.Procdir, "config.yaml")

	err = os.MkdirAll(istat.Procdir, fs.ModePerm)
	require.NoError(t, err, "failed to create a dir for the process")

	err = os.WriteFile(istat.ConfigFilePath, []byte(validConfig), fs.ModePerm)
	require.NoError(t, err, "failed to write config file")

	err = commoncfg.LoadConfig(&istat.Cfg, nil, istat.Procdir)
	require.NoError(t, err, "failed to load config")

	devAddr := freeAddress(t)
	istat.Cfg.DevServer.Address = devAddr
	istat.Cfg.Backend.BaseURL = "http://" + devAddr
	istat.Cfg.Jar.Store = config.JarStoreFile
	istat.Cfg.Jar.Dir = filepath.Join(istat.Procdir, "sessions")

	return istat
}

func freeAddress(t *testing.T) string {
	t.Helper()

	l, err := new(net.ListenConfig).Listen(t.Context(), "tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to find a free port")
	defer l.Close()

	return l.Addr().String()
}

func (istat *infraStat) PrepareValKey(t *testing.T) {
	t.Helper()

	vkClient, vkPort, vkTerminate := valkeytest.Start(t.Context())
	vkClient.Close()

	istat.ValKeyPort = vkPort
	istat.closeFuncs = append(istat.closeFuncs, vkTerminate)

	istat.Cfg.Jar.Store = config.JarStoreValKey
	istat.Cfg.ValKey.Host = commoncfg.SourceRef{Source: "embedded", Value: net.JoinHostPort("localhost", vkPort.Port())}
	istat.Cfg.ValKey.User = commoncfg.SourceRef{Source: "embedded", Value: ""}
	istat.Cfg.ValKey.Password = commoncfg.SourceRef{Source: "embedded", Value: ""}
	istat.Cfg.ValKey.Prefix = "integration"
}

// PrepareConfig writes a config file for running the test into the ConfigFilePath.
func (istat *infraStat) PrepareConfig(t *testing.T) {
	t.Helper()

	cfgMap := make(map[string]any)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "yaml",
		Squash:  true,
		Result:  &cfgMap,
	})
	require.NoError(t, err, "failed to create a decoder")
	require.NoError(t, decoder.Decode(istat.Cfg), "failed to decode config")

	configFile, err := os.Create(istat.ConfigFilePath)
	require.NoError(t, err, "failed to create config file")
	defer configFile.Close()

	err = yaml.NewEncoder(configFile).Encode(cfgMap)
	require.NoError(t, err, "failed to write config")
}

// StartDevServer runs the devserver command in the background and waits
// until it answers.
func (istat *infraStat) StartDevServer(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.Context()), time.Minute)

	cmd := exec.CommandContext(ctx, filepath.Join(istat.Bindir, binary), "devserver")
	cmd.Dir = istat.Procdir

	logFile, err := os.Create(filepath.Join(istat.Bindir, filepath.Base(istat.Procdir)+".log"))
	require.NoError(t, err, "failed to create a log file")
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	require.NoError(t, cmd.Start(), "could not start devserver")

	// stop gracefully so that coverprofiles are written
	istat.closeFuncs = append(istat.closeFuncs, func(context.Context) {
		_ = syscall.Kill(cmd.Process.Pid, syscall.SIGTERM)
		_ = cmd.Wait()
		cancel()
		logFile.Close()
	})

	require.Eventually(t, func() bool {
		resp, err := http.Get(istat.Cfg.Backend.BaseURL + "/ping")
		if err != nil {
			return false
		}
		resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond, "devserver did not start")
}

// Run executes the command line client and returns its stdout and exit code.
func (istat *infraStat) Run(t *testing.T, args ...string) ([]byte, int) {
	t.Helper()

	cmd := exec.CommandContext(t.Context(), filepath.Join(istat.Bindir, binary), args...)
	cmd.Dir = istat.Procdir
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.ExitCode()
	}
	require.NoError(t, err, "failed to run %v", args)

	return out, 0
}

func (istat *infraStat) Close(ctx context.Context) {
	for i := len(istat.closeFuncs) - 1; i >= 0; i-- {
		istat.closeFuncs[i](ctx)
	}

	os.RemoveAll(istat.Procdir)
}
