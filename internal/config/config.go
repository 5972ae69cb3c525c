// Package config loads nodekeeper's runtime context from flags and the
// environment.
//
// Every setting has an environment variable (NETWORK_NAME, NODE_TYPE, ...)
// and a matching flag (--network-name, --node-type, ...). Flags win over
// the environment, the environment wins over defaults. Values are read
// through viper, so tests can populate a *viper.Viper with Set directly.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dreamware/nodekeeper/internal/bootnode"
	"github.com/dreamware/nodekeeper/internal/launcher"
	"github.com/dreamware/nodekeeper/internal/logging"
	"github.com/dreamware/nodekeeper/internal/supervisor"
)

// Keys. Each maps to the upper-case environment variable of the same name
// and to a flag with dashes instead of underscores.
const (
	KeyNetworkName         = "network_name"
	KeyNodeType            = "node_type"
	KeyMinerIndex          = "miner_index"
	KeyMinerCount          = "miner_count"
	KeyPublicIP            = "public_ip"
	KeyBootnodeHost        = "bootnode_service_host"
	KeyBootnodePort        = "bootnode_service_port"
	KeyUpdateInterval      = "bootnode_service_update_interval"
	KeyEthereumProgram     = "ethereum_program"
	KeyNetworkPort         = "p2p_network_service_port"
	KeyRPCPort             = "http_json_rpc_port"
	KeyRestartPolicy       = "restart_policy"
	KeyConfigRoot          = "config_root"
	KeyChainDataRoot       = "chain_data_root"
	KeyHome                = "home"
	KeyDiscoveryRetryLimit = "discovery_retry_limit"
	KeyDiscoveryRetryDelay = "discovery_retry_delay"
	KeyLogLevel            = "log_level"
	KeyLogFormat           = "log_format"
	KeyListen              = "listen"
)

// FirstRunLock is the file whose absence marks a container's first start.
const FirstRunLock = "first-run-lock"

// ErrMissing is wrapped by Load for every required setting that is unset.
var ErrMissing = errors.New("required setting is missing")

// NodeType is the role of this node in the fleet.
type NodeType string

const (
	Miner      NodeType = "miner"
	Transactor NodeType = "transactor"
)

// ParseNodeType accepts miner and transactor in any case.
func ParseNodeType(s string) (NodeType, error) {
	switch NodeType(strings.ToLower(strings.TrimSpace(s))) {
	case Miner:
		return Miner, nil
	case Transactor:
		return Transactor, nil
	default:
		return "", fmt.Errorf("unknown node type %q", s)
	}
}

// Context is everything nodekeeper needs to know at startup.
type Context struct {
	PublicIP            netip.Addr
	NetworkName         string
	NodeType            NodeType
	BootnodeHost        string
	ConfigRoot          string
	ChainDataRoot       string
	Home                string
	LogLevel            string
	LogFormat           string
	Listen              string
	UpdateInterval      time.Duration
	DiscoveryRetryDelay time.Duration
	MinerIndex          int
	MinerCount          int
	DiscoveryRetryLimit int
	Program             launcher.Program
	RestartPolicy       supervisor.Policy
	BootnodePort        uint16
	NetworkPort         uint16
	RPCPort             uint16
	FirstRun            bool
}

// IsMiner reports whether this node seals blocks.
func (c Context) IsMiner() bool {
	return c.NodeType == Miner
}

// IsFirstMiner reports whether this node is the fleet's first miner, which
// starts without waiting for peers.
func (c Context) IsFirstMiner() bool {
	return c.IsMiner() && c.MinerIndex == 0
}

// BootnodeURL is the registry base URL.
func (c Context) BootnodeURL() string {
	return bootnode.BaseURL(c.BootnodeHost, c.BootnodePort)
}

// LogOptions returns the logging configuration.
func (c Context) LogOptions() logging.Options {
	return logging.Options{Level: c.LogLevel, Format: logging.Format(c.LogFormat)}
}

// MarshalLogObject lets the context be logged with zap.Object.
func (c Context) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("network", c.NetworkName)
	enc.AddString("node_type", string(c.NodeType))
	if c.IsMiner() {
		enc.AddInt("miner_index", c.MinerIndex)
	}
	enc.AddInt("miner_count", c.MinerCount)
	enc.AddString("public_ip", c.PublicIP.String())
	enc.AddString("bootnode", c.BootnodeURL())
	enc.AddDuration("update_interval", c.UpdateInterval)
	enc.AddString("program", c.Program.String())
	enc.AddString("restart_policy", c.RestartPolicy.String())
	enc.AddUint16("p2p_port", c.NetworkPort)
	enc.AddUint16("rpc_port", c.RPCPort)
	enc.AddBool("first_run", c.FirstRun)
	return nil
}

var _ zapcore.ObjectMarshaler = Context{}

// New returns a viper instance with defaults set and the environment bound.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyPublicIP, "0.0.0.0")
	v.SetDefault(KeyUpdateInterval, "10")
	v.SetDefault(KeyEthereumProgram, "parity")
	v.SetDefault(KeyNetworkPort, 30303)
	v.SetDefault(KeyRPCPort, 8545)
	v.SetDefault(KeyRestartPolicy, "always")
	v.SetDefault(KeyConfigRoot, "/")
	v.SetDefault(KeyChainDataRoot, "/chain-data")
	v.SetDefault(KeyMinerCount, 0)
	v.SetDefault(KeyDiscoveryRetryLimit, bootnode.DefaultRetryLimit)
	v.SetDefault(KeyDiscoveryRetryDelay, bootnode.DefaultRetryDelay.String())
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, string(logging.FormatConsole))
	v.SetDefault(KeyListen, "")
	v.AutomaticEnv()
	return v
}

// flagName turns a key into its flag name.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags adds one string flag per setting to fs and binds it to v.
// Flags left at their zero value do not override the environment.
func RegisterFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	usage := map[string]string{
		KeyNetworkName:         "network name used for registration",
		KeyNodeType:            "node role: miner or transactor",
		KeyMinerIndex:          "index of this miner within the fleet",
		KeyMinerCount:          "number of miners in the fleet",
		KeyPublicIP:            "public IP address other nodes dial",
		KeyBootnodeHost:        "bootnode registry host",
		KeyBootnodePort:        "bootnode registry port",
		KeyUpdateInterval:      "re-registration interval, seconds or a duration",
		KeyEthereumProgram:     "client to run: parity or geth",
		KeyNetworkPort:         "client devp2p port",
		KeyRPCPort:             "client HTTP JSON-RPC port",
		KeyRestartPolicy:       "restart policy: never, always or on-failure",
		KeyConfigRoot:          "parent directory of the client configuration",
		KeyChainDataRoot:       "chain data directory",
		KeyHome:                "directory holding the first-run lock",
		KeyDiscoveryRetryLimit: "static enode discovery retries",
		KeyDiscoveryRetryDelay: "pause between discovery retries",
		KeyLogLevel:            "log level: debug, info, warn or error",
		KeyLogFormat:           "log format: console or json",
		KeyListen:              "status server address, empty to disable",
	}

	for key, help := range usage {
		name := flagName(key)
		if fs.Lookup(name) == nil {
			fs.String(name, "", help)
		}
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads and validates the context. When HOME is set it also checks,
// and creates, the first-run lock.
func Load(v *viper.Viper) (Context, error) {
	var (
		c    Context
		errs []error
		err  error
	)

	required := func(key string) string {
		s := strings.TrimSpace(v.GetString(key))
		if s == "" {
			errs = append(errs, fmt.Errorf("%s: %w", strings.ToUpper(key), ErrMissing))
		}
		return s
	}
	check := func(key string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", strings.ToUpper(key), err))
		}
	}

	c.NetworkName = required(KeyNetworkName)
	if s := required(KeyNodeType); s != "" {
		c.NodeType, err = ParseNodeType(s)
		check(KeyNodeType, err)
	}
	c.BootnodeHost = required(KeyBootnodeHost)
	if required(KeyBootnodePort) != "" {
		c.BootnodePort, err = port(v, KeyBootnodePort)
		check(KeyBootnodePort, err)
	}

	c.MinerCount, err = cast.ToIntE(v.Get(KeyMinerCount))
	check(KeyMinerCount, err)
	if c.NodeType == Miner {
		if required(KeyMinerIndex) != "" {
			c.MinerIndex, err = cast.ToIntE(v.Get(KeyMinerIndex))
			check(KeyMinerIndex, err)
			if err == nil && (c.MinerIndex < 0 || c.MinerIndex >= c.MinerCount) {
				check(KeyMinerIndex, fmt.Errorf("index %d out of range for %d miners", c.MinerIndex, c.MinerCount))
			}
		}
	}

	c.PublicIP, err = netip.ParseAddr(strings.TrimSpace(v.GetString(KeyPublicIP)))
	check(KeyPublicIP, err)

	c.UpdateInterval, err = duration(v, KeyUpdateInterval)
	check(KeyUpdateInterval, err)
	c.DiscoveryRetryDelay, err = duration(v, KeyDiscoveryRetryDelay)
	check(KeyDiscoveryRetryDelay, err)
	c.DiscoveryRetryLimit, err = cast.ToIntE(v.Get(KeyDiscoveryRetryLimit))
	check(KeyDiscoveryRetryLimit, err)
	if err == nil && c.DiscoveryRetryLimit < 0 {
		check(KeyDiscoveryRetryLimit, errors.New("must not be negative"))
	}

	c.Program, err = launcher.ParseProgram(v.GetString(KeyEthereumProgram))
	check(KeyEthereumProgram, err)
	c.RestartPolicy, err = supervisor.ParsePolicy(v.GetString(KeyRestartPolicy))
	check(KeyRestartPolicy, err)
	c.NetworkPort, err = port(v, KeyNetworkPort)
	check(KeyNetworkPort, err)
	c.RPCPort, err = port(v, KeyRPCPort)
	check(KeyRPCPort, err)

	c.ConfigRoot = v.GetString(KeyConfigRoot)
	c.ChainDataRoot = v.GetString(KeyChainDataRoot)
	c.Home = v.GetString(KeyHome)
	c.LogLevel = v.GetString(KeyLogLevel)
	c.LogFormat = v.GetString(KeyLogFormat)
	c.Listen = v.GetString(KeyListen)

	if err := multierr.Combine(errs...); err != nil {
		return Context{}, err
	}

	if c.Home != "" {
		c.FirstRun, err = CheckFirstRun(c.Home)
		if err != nil {
			return Context{}, err
		}
	}
	return c, nil
}

// CheckFirstRun reports whether home has no first-run lock yet, creating
// the lock (and home) if so.
func CheckFirstRun(home string) (bool, error) {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return false, fmt.Errorf("create home %s: %w", home, err)
	}

	lock := filepath.Join(home, FirstRunLock)
	if _, err := os.Stat(lock); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", lock, err)
	}

	f, err := os.Create(lock)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", lock, err)
	}
	return true, f.Close()
}

func port(v *viper.Viper, key string) (uint16, error) {
	n, err := cast.ToIntE(v.Get(key))
	if err != nil {
		return 0, err
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return uint16(n), nil
}

// duration accepts whole seconds ("10") or a Go duration ("1m30s").
func duration(v *viper.Viper, key string) (time.Duration, error) {
	s := strings.TrimSpace(v.GetString(key))
	var (
		d   time.Duration
		err error
	)
	if n, convErr := strconv.Atoi(s); convErr == nil {
		d = time.Duration(n) * time.Second
	} else {
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

// Field is a convenience for logging the whole context.
func Field(c Context) zap.Field {
	return zap.Object("context", c)
}
