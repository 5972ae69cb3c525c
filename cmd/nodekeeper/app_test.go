package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dreamware/nodekeeper/internal/bootnode"
	"github.com/dreamware/nodekeeper/internal/config"
	"github.com/dreamware/nodekeeper/internal/fault"
	"github.com/dreamware/nodekeeper/internal/launcher"
	"github.com/dreamware/nodekeeper/internal/supervisor"
)

// The test binary doubles as the Ethereum client: when fakeClientEnv is
// set it records its arguments, sleeps and exits with the given code.
const (
	fakeClientEnv = "NODEKEEPER_FAKE_CLIENT" // "<lifetime>,<exit code>"
	fakeArgsEnv   = "NODEKEEPER_FAKE_ARGS"   // file receiving the argv
)

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeClientEnv); mode != "" {
		os.Exit(fakeClient(mode))
	}
	os.Exit(m.Run())
}

func fakeClient(mode string) int {
	if path := os.Getenv(fakeArgsEnv); path != "" {
		_ = os.WriteFile(path, []byte(strings.Join(os.Args[1:], "\n")), 0o644)
	}
	lifetime, code, _ := strings.Cut(mode, ",")
	d, _ := time.ParseDuration(lifetime)
	n, _ := strconv.Atoi(code)
	time.Sleep(d)
	return n
}

// useFakeClient makes the next launch run the test binary as the client.
func useFakeClient(t *testing.T, lifetime time.Duration, code int) (exe, argsFile string) {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	argsFile = filepath.Join(t.TempDir(), "args")
	t.Setenv(fakeClientEnv, lifetime.String()+","+strconv.Itoa(code))
	t.Setenv(fakeArgsEnv, argsFile)
	return exe, argsFile
}

// fakeRegistry is a bootnode registry serving a fixed peer list and
// recording every publish.
type fakeRegistry struct {
	*httptest.Server
	peers     []string
	published chan bootnode.EnodeInfo
	mu        sync.Mutex
	queries   int
}

func newFakeRegistry(t *testing.T, peers ...string) *fakeRegistry {
	t.Helper()
	r := &fakeRegistry{peers: peers, published: make(chan bootnode.EnodeInfo, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/staticenodes", func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.queries++
		r.mu.Unlock()
		out := r.peers
		if out == nil {
			out = []string{}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		var info bootnode.EnodeInfo
		if err := json.NewDecoder(req.Body).Decode(&info); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		select {
		case r.published <- info:
		default:
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Close)
	return r
}

func (r *fakeRegistry) hostPort(t *testing.T) (string, uint16) {
	t.Helper()
	u, err := url.Parse(r.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), uint16(port)
}

// newFakeRPC serves parity_enode with self and returns its port.
func newFakeRPC(t *testing.T, self string) uint16 {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			ID     json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":`+string(req.ID)+`,"result":"`+self+`"}`)
	}))
	t.Cleanup(srv.Close)

	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	n, err := strconv.Atoi(port)
	require.NoError(t, err)
	return uint16(n)
}

// baseContext is a transactor pointed at reg with every path under t's
// temp dir.
func baseContext(t *testing.T, reg *fakeRegistry) config.Context {
	t.Helper()
	host, port := reg.hostPort(t)
	root := t.TempDir()
	return config.Context{
		PublicIP:            netip.MustParseAddr("203.0.113.9"),
		NetworkName:         "testnet",
		NodeType:            config.Transactor,
		BootnodeHost:        host,
		BootnodePort:        port,
		ConfigRoot:          filepath.Join(root, "config"),
		ChainDataRoot:       filepath.Join(root, "chain-data"),
		UpdateInterval:      10 * time.Second,
		DiscoveryRetryDelay: 10 * time.Millisecond,
		DiscoveryRetryLimit: 3,
		Program:             launcher.Parity,
		RestartPolicy:       supervisor.Always,
		NetworkPort:         30303,
		RPCPort:             8545,
		FirstRun:            true,
	}
}

// TestRunRegistersClient drives a full startup: discovery, first-run
// preparation, launch, registration and the status server.
func TestRunRegistersClient(t *testing.T) {
	const peer = "enode://peer1@10.0.0.1:30303"
	reg := newFakeRegistry(t, peer)
	exe, argsFile := useFakeClient(t, 30*time.Second, 0)

	cfg := baseContext(t, reg)
	cfg.RPCPort = newFakeRPC(t, "enode://abcd@127.0.0.1:30303")

	status, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	a := &app{
		cfg:      cfg,
		logger:   zaptest.NewLogger(t),
		registry: prometheus.NewRegistry(),
		status:   status,
		exe:      exe,
		stdout:   io.Discard,
		stderr:   io.Discard,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	select {
	case info := <-reg.published:
		assert.Equal(t, bootnode.EnodeInfo{
			Enode:    "abcd",
			Port:     30303,
			IP:       "127.0.0.1",
			PublicIP: "203.0.113.9",
			Network:  "testnet",
			Miner:    false,
		}, info)
	case err := <-done:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("client was never registered")
	}

	metricsURL := "http://" + status.Addr().String() + "/metrics"
	assert.Eventually(t, func() bool {
		resp, err := http.Get(metricsURL)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return bytes.Contains(body, []byte(`nodekeeper_registration_cycles_total{result="published"} 1`))
	}, 5*time.Second, 20*time.Millisecond)

	var args []byte
	require.Eventually(t, func() bool {
		args, err = os.ReadFile(argsFile)
		return err == nil && len(args) > 0
	}, 5*time.Second, 10*time.Millisecond, "client never started")
	assert.Contains(t, string(args), "--bootnodes="+peer)
	assert.Contains(t, string(args), "--no-download")

	peers, err := os.ReadFile(filepath.Join(cfg.ConfigRoot, "parity-config", "reserved_peers"))
	require.NoError(t, err)
	assert.Equal(t, peer+"\n", string(peers))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean shutdown")
	case <-time.After(20 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

// TestRunEndsWhenClientExits verifies that the first exit outcome ends the
// run under the never policy.
func TestRunEndsWhenClientExits(t *testing.T) {
	reg := newFakeRegistry(t)
	exe, _ := useFakeClient(t, 0, 3)

	cfg := baseContext(t, reg)
	cfg.NodeType = config.Miner
	cfg.MinerIndex = 0
	cfg.MinerCount = 1
	cfg.RestartPolicy = supervisor.Never
	cfg.FirstRun = false

	a := &app{cfg: cfg, logger: zaptest.NewLogger(t), exe: exe, stdout: io.Discard, stderr: io.Discard}

	done := make(chan error, 1)
	go func() { done <- a.run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after the client exited")
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	assert.Zero(t, reg.queries, "the first miner does not discover peers")
}

// TestRunLaunchFailure verifies that a client that cannot start is fatal.
func TestRunLaunchFailure(t *testing.T) {
	reg := newFakeRegistry(t)
	cfg := baseContext(t, reg)
	cfg.NodeType = config.Miner
	cfg.MinerCount = 1

	a := &app{cfg: cfg, logger: zaptest.NewLogger(t), exe: filepath.Join(t.TempDir(), "no-such-client")}

	err := a.run(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Launch), "got %v", err)
}

// TestRunInterruptedDuringDiscovery verifies that a signal while waiting
// for peers ends the run without launching the client.
func TestRunInterruptedDuringDiscovery(t *testing.T) {
	reg := newFakeRegistry(t)
	exe, argsFile := useFakeClient(t, 30*time.Second, 0)

	cfg := baseContext(t, reg)
	cfg.DiscoveryRetryDelay = time.Hour
	cfg.DiscoveryRetryLimit = 100

	a := &app{cfg: cfg, logger: zaptest.NewLogger(t), exe: exe}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	assert.Eventually(t, func() bool {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		return reg.queries > 0
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	_, err := os.Stat(argsFile)
	assert.True(t, os.IsNotExist(err), "client must not be launched")
}

// TestRootCommandConfigurationError verifies that invalid settings fail
// before anything starts.
func TestRootCommandConfigurationError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NETWORK_NAME", "testnet")
	t.Setenv("BOOTNODE_SERVICE_HOST", "127.0.0.1")
	t.Setenv("BOOTNODE_SERVICE_PORT", "3000")

	var stderr bytes.Buffer
	cmd := newRootCmd(config.New())
	cmd.SetArgs([]string{"--node-type=validator"})
	cmd.SetErr(&stderr)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NODE_TYPE")
	assert.Contains(t, stderr.String(), "configuration")
}

// TestRootCommandFlags verifies every setting is exposed as a flag.
func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCmd(config.New())
	for _, name := range []string{
		"network-name", "node-type", "miner-index", "miner-count", "public-ip",
		"bootnode-service-host", "bootnode-service-port", "bootnode-service-update-interval",
		"ethereum-program", "restart-policy", "listen", "log-level",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
