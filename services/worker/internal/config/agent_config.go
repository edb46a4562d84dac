package config

import (
	"math"
	"strconv"
	"time"

	"github.com/xinkaiwang/integralfarm/libs/compute"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

const Usage = "usage: worker <listening port> <server port> [<threads>]"

// AgentConfigJson carries only what was given explicitly; nil means use the default.
type AgentConfigJson struct {
	ListenPort       *int     `json:"listen_port,omitempty"`
	ServerPort       *int     `json:"server_port,omitempty"`
	Parallelism      *int     `json:"parallelism,omitempty"`
	BenchmarkDelta   *float64 `json:"benchmark_delta,omitempty"`
	Workload         *string  `json:"workload,omitempty"`
	DialTimeoutMs    *int     `json:"dial_timeout_ms,omitempty"`
	RequestTimeoutMs *int     `json:"request_timeout_ms,omitempty"`
	MetricsPort      *int     `json:"metrics_port,omitempty"`
}

type AgentConfig struct {
	ListenPort     int // discovery datagrams arrive here
	ServerPort     int // coordinator TCP port, dialed on the probe sender's address
	Parallelism    int
	BenchmarkDelta float64
	Workload       string
	DialTimeout    time.Duration
	RequestTimeout time.Duration // 0 waits forever for the request
	MetricsPort    int           // 0 disables /metrics
}

func usageError(msg string) *kerror.Kerror {
	return kerror.Create("InvalidConfig", msg).With("usage", Usage).WithErrorCode(kerror.EC_INVALID_PARAMETER)
}

// ParseArgs reads the positional arguments (program name excluded).
func ParseArgs(args []string) (*AgentConfigJson, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, usageError("wrong number of arguments").With("argc", len(args))
	}
	cj := &AgentConfigJson{}
	ints := []**int{&cj.ListenPort, &cj.ServerPort, &cj.Parallelism}
	names := []string{"listening port", "server port", "threads"}
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return nil, usageError("argument is not an integer").With("arg", names[i]).With("value", arg)
		}
		*ints[i] = &v
	}
	return cj, nil
}

// AgentConfigJsonToConfig: precedence is explicit value, then env, then built-in default.
func AgentConfigJsonToConfig(cj *AgentConfigJson) *AgentConfig {
	cfg := &AgentConfig{
		Parallelism:    1,
		BenchmarkDelta: kcommon.GetEnvFloat("WORKER_BENCHMARK_DELTA", 1e-6),
		Workload:       kcommon.GetEnvString("WORKER_WORKLOAD", "identity"),
		DialTimeout:    kcommon.GetEnvDurationMs("WORKER_DIAL_TIMEOUT_MS", 5*time.Second),
		RequestTimeout: kcommon.GetEnvDurationMs("WORKER_REQUEST_TIMEOUT_MS", 0),
		MetricsPort:    kcommon.GetEnvInt("METRICS_PORT", 0),
	}
	if cj == nil {
		return cfg
	}
	if cj.ListenPort != nil {
		cfg.ListenPort = *cj.ListenPort
	}
	if cj.ServerPort != nil {
		cfg.ServerPort = *cj.ServerPort
	}
	if cj.Parallelism != nil {
		cfg.Parallelism = *cj.Parallelism
	}
	if cj.BenchmarkDelta != nil {
		cfg.BenchmarkDelta = *cj.BenchmarkDelta
	}
	if cj.Workload != nil {
		cfg.Workload = *cj.Workload
	}
	if cj.DialTimeoutMs != nil {
		cfg.DialTimeout = time.Duration(*cj.DialTimeoutMs) * time.Millisecond
	}
	if cj.RequestTimeoutMs != nil {
		cfg.RequestTimeout = time.Duration(*cj.RequestTimeoutMs) * time.Millisecond
	}
	if cj.MetricsPort != nil {
		cfg.MetricsPort = *cj.MetricsPort
	}
	return cfg
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func (cfg *AgentConfig) Validate() error {
	if !validPort(cfg.ListenPort) {
		return usageError("listening port out of range").With("listenPort", cfg.ListenPort)
	}
	if !validPort(cfg.ServerPort) {
		return usageError("server port out of range").With("serverPort", cfg.ServerPort)
	}
	if cfg.Parallelism < 1 || cfg.Parallelism > compute.MaxParallelism {
		return usageError("threads must be between 1 and the engine limit").With("threads", cfg.Parallelism).With("max", compute.MaxParallelism)
	}
	if math.IsNaN(cfg.BenchmarkDelta) || cfg.BenchmarkDelta <= 0 {
		return usageError("benchmark delta must be positive").With("benchmarkDelta", cfg.BenchmarkDelta)
	}
	if _, err := compute.LookupWorkload(cfg.Workload); err != nil {
		return kerror.Wrap(err, "InvalidConfig", "unknown workload", false).With("usage", Usage)
	}
	if cfg.DialTimeout <= 0 || cfg.RequestTimeout < 0 {
		return usageError("timeouts must not be negative").With("dialTimeout", cfg.DialTimeout).With("requestTimeout", cfg.RequestTimeout)
	}
	if cfg.MetricsPort != 0 && !validPort(cfg.MetricsPort) {
		return usageError("metrics port out of range").With("metricsPort", cfg.MetricsPort)
	}
	return nil
}

// LoadAgentConfig = ParseArgs + defaults + Validate.
func LoadAgentConfig(args []string) (*AgentConfig, error) {
	cj, err := ParseArgs(args)
	if err != nil {
		return nil, err
	}
	cfg := AgentConfigJsonToConfig(cj)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type AgentConfigOption func(*AgentConfig)

func WithParallelism(n int) AgentConfigOption {
	return func(cfg *AgentConfig) {
		cfg.Parallelism = n
	}
}

func WithBenchmarkDelta(delta float64) AgentConfigOption {
	return func(cfg *AgentConfig) {
		cfg.BenchmarkDelta = delta
	}
}

func WithRequestTimeout(d time.Duration) AgentConfigOption {
	return func(cfg *AgentConfig) {
		cfg.RequestTimeout = d
	}
}

func WithWorkload(name string) AgentConfigOption {
	return func(cfg *AgentConfig) {
		cfg.Workload = name
	}
}

// CreateTestAgentConfig uses ephemeral ports: ListenPort 0 is only valid for tests.
func CreateTestAgentConfig(serverPort int, options ...AgentConfigOption) *AgentConfig {
	cfg := AgentConfigJsonToConfig(&AgentConfigJson{})
	cfg.ServerPort = serverPort
	cfg.BenchmarkDelta = 1e-4
	cfg.DialTimeout = 2 * time.Second
	for _, option := range options {
		option(cfg)
	}
	return cfg
}
