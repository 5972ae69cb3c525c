// Package launcher starts the blockchain client that nodekeeper supervises.
//
// It knows where each supported client keeps its configuration, which
// flags it needs, and how to ask it for its own enode. Generating client
// configuration, chain specs and keystores is left to the image; the
// launcher only writes the reserved-peers list on first run.
package launcher

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/nodekeeper/internal/enode"
	"github.com/dreamware/nodekeeper/internal/jsonrpc"
	"github.com/dreamware/nodekeeper/internal/supervisor"
)

// Program is a supported blockchain client.
type Program int

const (
	Parity Program = iota
	GoEthereum
)

func (p Program) String() string {
	switch p {
	case Parity:
		return "parity"
	case GoEthereum:
		return "geth"
	default:
		return fmt.Sprintf("Program(%d)", int(p))
	}
}

// ParseProgram accepts parity, geth and go-ethereum in any case.
func ParseProgram(s string) (Program, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parity":
		return Parity, nil
	case "geth", "go-ethereum":
		return GoEthereum, nil
	default:
		return Parity, fmt.Errorf("unknown ethereum program %q", s)
	}
}

// Executable is the binary name looked up on PATH.
func (p Program) Executable() string {
	return p.String()
}

// Launcher starts one client configuration. The zero value is not usable;
// Program, ConfigRoot, DataDir and both ports must be set.
type Launcher struct {
	Stdout      io.Writer       // client stdout, os.Stdout when nil
	Stderr      io.Writer       // client stderr, os.Stderr when nil
	Logger      *zap.Logger     // optional
	ConfigRoot  string          // parent of the per-program config directory
	DataDir     string          // chain data directory
	Executable  string          // overrides Program.Executable when set
	Bootnodes   []enode.Address // static peers found at startup
	Grace       time.Duration   // SIGTERM to SIGKILL delay, see supervisor.DefaultGracePeriod
	Program     Program
	NetworkPort uint16 // devp2p port
	RPCPort     uint16 // HTTP JSON-RPC port
}

// ConfigDir is where the client's configuration lives.
func (l *Launcher) ConfigDir() string {
	return filepath.Join(l.ConfigRoot, l.Program.String()+"-config")
}

// ConfigFile is the client's main configuration file.
func (l *Launcher) ConfigFile() string {
	return filepath.Join(l.ConfigDir(), "config.toml")
}

// ReservedPeersFile lists one enode URL per line.
func (l *Launcher) ReservedPeersFile() string {
	return filepath.Join(l.ConfigDir(), "reserved_peers")
}

// LocalRPCURL is the client's JSON-RPC endpoint as seen from this container.
func (l *Launcher) LocalRPCURL() string {
	return "http://127.0.0.1:" + strconv.Itoa(int(l.RPCPort)) + "/"
}

// EnodeMethod is the JSON-RPC method that returns the client's own enode.
func (l *Launcher) EnodeMethod() string {
	if l.Program == GoEthereum {
		return jsonrpc.MethodAdminNodeInfo
	}
	return jsonrpc.MethodParityEnode
}

// Initialize prepares the directories and writes the reserved-peers file.
// It is meant to run once, on the container's first start.
func (l *Launcher) Initialize() error {
	for _, dir := range []string{l.ConfigDir(), l.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var b strings.Builder
	for _, node := range l.Bootnodes {
		b.WriteString(node.String())
		b.WriteByte('\n')
	}
	if err := os.WriteFile(l.ReservedPeersFile(), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write reserved peers: %w", err)
	}

	l.logger().Info("client initialized",
		zap.String("config_dir", l.ConfigDir()),
		zap.Int("reserved_peers", len(l.Bootnodes)))
	return nil
}

// Args returns the client's command-line arguments.
func (l *Launcher) Args() []string {
	bootnodes := make([]string, 0, len(l.Bootnodes))
	for _, node := range l.Bootnodes {
		bootnodes = append(bootnodes, node.String())
	}

	var args []string
	switch l.Program {
	case GoEthereum:
		args = []string{
			"--datadir=" + l.DataDir,
			"--port=" + strconv.Itoa(int(l.NetworkPort)),
			"--http",
			"--http.addr=0.0.0.0",
			"--http.port=" + strconv.Itoa(int(l.RPCPort)),
			"--http.api=admin,eth,net,web3",
		}
	default:
		args = []string{
			"--config=" + l.ConfigFile(),
			"--no-download",
			"--no-hardware-wallets",
			"--reserved-peers=" + l.ReservedPeersFile(),
		}
	}
	if len(bootnodes) > 0 {
		args = append(args, "--bootnodes="+strings.Join(bootnodes, ","))
	}
	return args
}

// Command builds the client command without starting it.
func (l *Launcher) Command() *exec.Cmd {
	name := l.Executable
	if name == "" {
		name = l.Program.Executable()
	}

	cmd := exec.Command(name, l.Args()...)
	cmd.Stdout = l.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd
}

// Launch starts the client. It implements supervisor.Launcher.
func (l *Launcher) Launch() (supervisor.Process, error) {
	cmd := l.Command()
	p, err := supervisor.StartCommand(cmd, l.Grace)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	l.logger().Debug("client started", zap.Int("pid", p.PID()), zap.Strings("args", cmd.Args))
	return p, nil
}

func (l *Launcher) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
