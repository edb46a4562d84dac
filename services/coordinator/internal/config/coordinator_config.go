package config

import (
	"math"
	"net"
	"strconv"
	"time"

	"github.com/xinkaiwang/integralfarm/libs/compute"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/partition"
)

const Usage = "usage: coordinator <server port> <broadcast address> <broadcast port>\n" +
	"       <start point> <end point> <delta> [<use load balancing?>]\n" +
	"       [<maximum number of workers>] [<waiting time in seconds>]"

const (
	DefaultMaxWorkers  = 16
	DefaultWaitSeconds = 5
	MaxWaitSeconds     = 3600
)

// CoordinatorConfigJson carries only what was given explicitly; nil means use the default.
type CoordinatorConfigJson struct {
	ServerPort      *int     `json:"server_port,omitempty"`
	BroadcastAddr   *string  `json:"broadcast_addr,omitempty"`
	BroadcastPort   *int     `json:"broadcast_port,omitempty"`
	StartPoint      *float64 `json:"start_point,omitempty"`
	EndPoint        *float64 `json:"end_point,omitempty"`
	Delta           *float64 `json:"delta,omitempty"`
	LoadBalancing   *bool    `json:"load_balancing,omitempty"`
	MaxWorkers      *int     `json:"max_workers,omitempty"`
	WaitSeconds     *int     `json:"wait_seconds,omitempty"`
	Concurrent      *bool    `json:"concurrent,omitempty"`
	IOTimeoutMs     *int     `json:"io_timeout_ms,omitempty"`
	RunStoreEnabled *bool    `json:"run_store_enabled,omitempty"`
}

type CoordinatorConfig struct {
	ServerPort      int
	BroadcastAddr   string
	BroadcastPort   int
	Interval        partition.Interval
	Delta           float64
	LoadBalancing   bool
	MaxWorkers      int
	WaitWindow      time.Duration // pool assembly window
	Concurrent      bool          // fan out benchmark, dispatch and gather per worker
	IOTimeout       time.Duration // per-worker exchange deadline, 0 blocks forever
	RunStoreEnabled bool
}

func (cfg *CoordinatorConfig) Policy() partition.Policy {
	return partition.PolicyOf(cfg.LoadBalancing)
}

func usageError(msg string) *kerror.Kerror {
	return kerror.Create("InvalidConfig", msg).With("usage", Usage).WithErrorCode(kerror.EC_INVALID_PARAMETER)
}

func parseInt(name, arg string) (*int, error) {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return nil, usageError("argument is not an integer").With("arg", name).With("value", arg)
	}
	return &v, nil
}

func parseFloat(name, arg string) (*float64, error) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return nil, usageError("argument is not a number").With("arg", name).With("value", arg)
	}
	return &v, nil
}

// ParseArgs reads the positional arguments (program name excluded).
func ParseArgs(args []string) (*CoordinatorConfigJson, error) {
	if len(args) < 6 || len(args) > 9 {
		return nil, usageError("wrong number of arguments").With("argc", len(args))
	}
	cj := &CoordinatorConfigJson{}
	var err error
	if cj.ServerPort, err = parseInt("server port", args[0]); err != nil {
		return nil, err
	}
	cj.BroadcastAddr = &args[1]
	if cj.BroadcastPort, err = parseInt("broadcast port", args[2]); err != nil {
		return nil, err
	}
	if cj.StartPoint, err = parseFloat("start point", args[3]); err != nil {
		return nil, err
	}
	if cj.EndPoint, err = parseFloat("end point", args[4]); err != nil {
		return nil, err
	}
	if cj.Delta, err = parseFloat("delta", args[5]); err != nil {
		return nil, err
	}
	if len(args) >= 7 {
		lb, err := parseInt("use load balancing", args[6])
		if err != nil {
			return nil, usageError("<use load balancing> must be 1 or 0").With("value", args[6])
		}
		on := *lb != 0
		cj.LoadBalancing = &on
	}
	if len(args) >= 8 {
		if cj.MaxWorkers, err = parseInt("maximum number of workers", args[7]); err != nil {
			return nil, err
		}
	}
	if len(args) >= 9 {
		if cj.WaitSeconds, err = parseInt("waiting time in seconds", args[8]); err != nil {
			return nil, err
		}
	}
	return cj, nil
}

// CoordinatorConfigJsonToConfig: precedence is explicit value, then env, then built-in default.
func CoordinatorConfigJsonToConfig(cj *CoordinatorConfigJson) *CoordinatorConfig {
	cfg := &CoordinatorConfig{
		LoadBalancing:   true,
		MaxWorkers:      DefaultMaxWorkers,
		WaitWindow:      DefaultWaitSeconds * time.Second,
		Concurrent:      kcommon.GetEnvBool("COORDINATOR_CONCURRENT", true),
		IOTimeout:       kcommon.GetEnvDurationMs("COORDINATOR_IO_TIMEOUT_MS", 0),
		RunStoreEnabled: kcommon.GetEnvBool("RUNSTORE_ENABLED", false),
	}
	if cj == nil {
		return cfg
	}
	if cj.ServerPort != nil {
		cfg.ServerPort = *cj.ServerPort
	}
	if cj.BroadcastAddr != nil {
		cfg.BroadcastAddr = *cj.BroadcastAddr
	}
	if cj.BroadcastPort != nil {
		cfg.BroadcastPort = *cj.BroadcastPort
	}
	if cj.StartPoint != nil {
		cfg.Interval.Start = *cj.StartPoint
	}
	if cj.EndPoint != nil {
		cfg.Interval.End = *cj.EndPoint
	}
	if cj.Delta != nil {
		cfg.Delta = *cj.Delta
	}
	if cj.LoadBalancing != nil {
		cfg.LoadBalancing = *cj.LoadBalancing
	}
	if cj.MaxWorkers != nil {
		cfg.MaxWorkers = *cj.MaxWorkers
	}
	if cj.WaitSeconds != nil {
		cfg.WaitWindow = time.Duration(*cj.WaitSeconds) * time.Second
	}
	if cj.Concurrent != nil {
		cfg.Concurrent = *cj.Concurrent
	}
	if cj.IOTimeoutMs != nil {
		cfg.IOTimeout = time.Duration(*cj.IOTimeoutMs) * time.Millisecond
	}
	if cj.RunStoreEnabled != nil {
		cfg.RunStoreEnabled = *cj.RunStoreEnabled
	}
	return cfg
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (cfg *CoordinatorConfig) Validate() error {
	if !validPort(cfg.ServerPort) {
		return usageError("server port out of range").With("serverPort", cfg.ServerPort)
	}
	if ip := net.ParseIP(cfg.BroadcastAddr); ip == nil || ip.To4() == nil {
		return usageError("invalid broadcast address").With("broadcastAddr", cfg.BroadcastAddr)
	}
	if !validPort(cfg.BroadcastPort) {
		return usageError("broadcast port out of range").With("broadcastPort", cfg.BroadcastPort)
	}
	if !finite(cfg.Delta) || cfg.Delta <= 0 {
		return usageError("<delta> must be a positive real number").With("delta", cfg.Delta)
	}
	if !finite(cfg.Interval.Start) || !finite(cfg.Interval.End) || cfg.Interval.Start > cfg.Interval.End {
		return usageError("<start point> must be lesser than <end point>").With("start", cfg.Interval.Start).With("end", cfg.Interval.End)
	}
	if !compute.StepAdvances(cfg.Interval.Start, cfg.Interval.End, cfg.Delta) {
		return usageError("<delta> is too small for the interval bounds").With("delta", cfg.Delta)
	}
	if cfg.MaxWorkers < 1 {
		return usageError("<maximum number of workers> must be a positive integer").With("maxWorkers", cfg.MaxWorkers)
	}
	if cfg.WaitWindow < time.Second || cfg.WaitWindow > MaxWaitSeconds*time.Second {
		return usageError("<waiting time in seconds> must be between 1 and 3600").With("wait", cfg.WaitWindow)
	}
	if cfg.IOTimeout < 0 {
		return usageError("io timeout must not be negative").With("ioTimeout", cfg.IOTimeout)
	}
	return nil
}

// LoadCoordinatorConfig = ParseArgs + defaults + Validate.
func LoadCoordinatorConfig(args []string) (*CoordinatorConfig, error) {
	cj, err := ParseArgs(args)
	if err != nil {
		return nil, err
	}
	cfg := CoordinatorConfigJsonToConfig(cj)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type CoordinatorConfigOption func(*CoordinatorConfig)

func WithLoadBalancing(on bool) CoordinatorConfigOption {
	return func(cfg *CoordinatorConfig) {
		cfg.LoadBalancing = on
	}
}

func WithMaxWorkers(n int) CoordinatorConfigOption {
	return func(cfg *CoordinatorConfig) {
		cfg.MaxWorkers = n
	}
}

func WithWaitWindow(d time.Duration) CoordinatorConfigOption {
	return func(cfg *CoordinatorConfig) {
		cfg.WaitWindow = d
	}
}

func WithConcurrent(on bool) CoordinatorConfigOption {
	return func(cfg *CoordinatorConfig) {
		cfg.Concurrent = on
	}
}

func WithIOTimeout(d time.Duration) CoordinatorConfigOption {
	return func(cfg *CoordinatorConfig) {
		cfg.IOTimeout = d
	}
}

func WithInterval(start, end, delta float64) CoordinatorConfigOption {
	return func(cfg *CoordinatorConfig) {
		cfg.Interval = partition.Interval{Start: start, End: end}
		cfg.Delta = delta
	}
}

// CreateTestCoordinatorConfig probes 127.0.0.1 on probePort. ServerPort 0 binds an ephemeral port and is only valid for tests;
// the wait window may be shorter than a second.
func CreateTestCoordinatorConfig(probePort int, options ...CoordinatorConfigOption) *CoordinatorConfig {
	cfg := CoordinatorConfigJsonToConfig(&CoordinatorConfigJson{})
	cfg.BroadcastAddr = "127.0.0.1"
	cfg.BroadcastPort = probePort
	cfg.Interval = partition.Interval{Start: 0, End: 1}
	cfg.Delta = 1e-4
	cfg.WaitWindow = 2 * time.Second
	for _, option := range options {
		option(cfg)
	}
	return cfg
}
