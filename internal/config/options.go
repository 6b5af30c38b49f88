package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/cluster"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/orchestrator"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/placement"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read into Options.
const EnvPrefix = "VIZFLOW_"

// Options controls how workflows are executed and how the process group is
// laid out.
type Options struct {
	MaxParallelTasks  int           `yaml:"max_parallel_tasks"`
	PlacementPolicy   string        `yaml:"placement_policy"`
	Deadline          time.Duration `yaml:"deadline"`
	TaskTimeout       time.Duration `yaml:"task_timeout"`
	MPIEnabled        bool          `yaml:"mpi_enabled"`
	Ranks             int           `yaml:"ranks"`
	Transport         string        `yaml:"transport"`
	Host              string        `yaml:"host"`
	BasePort          int           `yaml:"base_port"`
	PoolSize          int           `yaml:"pool_size"`
	MaxRetries        int           `yaml:"max_retries"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	CancelGrace       time.Duration `yaml:"cancel_grace"`
	QueueCapacity     int           `yaml:"queue_capacity"`
	ArenaCapacity     int64         `yaml:"arena_capacity"`
}

// DefaultOptions returns the options used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		MaxParallelTasks:  4,
		PlacementPolicy:   string(placement.RoundRobin),
		Ranks:             1,
		Transport:         cluster.TransportInMemory,
		Host:              "127.0.0.1",
		PoolSize:          2,
		HeartbeatInterval: time.Second,
		HeartbeatTimeout:  5 * time.Second,
		CancelGrace:       5 * time.Second,
		QueueCapacity:     256,
	}
}

// LoadOptions layers the defaults, the YAML file at path (skipped when path
// is empty), the .env files in dotenv and the VIZFLOW_* environment.
func LoadOptions(path string, dotenv ...string) (Options, error) {
	o := DefaultOptions()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return o, fmt.Errorf("failed to read options file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&o); err != nil && !errors.Is(err, io.EOF) {
			return o, fmt.Errorf("failed to parse options file %s: %w", path, err)
		}
	}
	if err := LoadDotEnv(dotenv...); err != nil {
		return o, err
	}
	if err := o.ApplyEnv(os.LookupEnv); err != nil {
		return o, err
	}
	return o, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// field is one option settable from the environment and from a flag.
type field struct {
	key   string
	usage string
	set   func(o *Options, s string) error
	// register adds the flag with the default taken from d.
	register func(fs *pflag.FlagSet, name, usage string, d Options)
}

// flag returns the command-line flag name of the field.
func (f field) flag() string { return strings.ReplaceAll(f.key, "_", "-") }

// env returns the environment variable name of the field.
func (f field) env() string { return EnvPrefix + strings.ToUpper(f.key) }

func intField(key, usage string, dst func(*Options) *int) field {
	return field{
		key: key, usage: usage,
		set: func(o *Options, s string) error {
			v, err := strconv.Atoi(s)
			if err != nil {
				return err
			}
			*dst(o) = v
			return nil
		},
		register: func(fs *pflag.FlagSet, name, usage string, d Options) { fs.Int(name, *dst(&d), usage) },
	}
}

func int64Field(key, usage string, dst func(*Options) *int64) field {
	return field{
		key: key, usage: usage,
		set: func(o *Options, s string) error {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return err
			}
			*dst(o) = v
			return nil
		},
		register: func(fs *pflag.FlagSet, name, usage string, d Options) { fs.Int64(name, *dst(&d), usage) },
	}
}

func boolField(key, usage string, dst func(*Options) *bool) field {
	return field{
		key: key, usage: usage,
		set: func(o *Options, s string) error {
			v, err := strconv.ParseBool(s)
			if err != nil {
				return err
			}
			*dst(o) = v
			return nil
		},
		register: func(fs *pflag.FlagSet, name, usage string, d Options) { fs.Bool(name, *dst(&d), usage) },
	}
}

func durationField(key, usage string, dst func(*Options) *time.Duration) field {
	return field{
		key: key, usage: usage,
		set: func(o *Options, s string) error {
			v, err := time.ParseDuration(s)
			if err != nil {
				return err
			}
			*dst(o) = v
			return nil
		},
		register: func(fs *pflag.FlagSet, name, usage string, d Options) { fs.Duration(name, *dst(&d), usage) },
	}
}

func stringField(key, usage string, dst func(*Options) *string) field {
	return field{
		key: key, usage: usage,
		set: func(o *Options, s string) error {
			*dst(o) = s
			return nil
		},
		register: func(fs *pflag.FlagSet, name, usage string, d Options) { fs.String(name, *dst(&d), usage) },
	}
}

var fields = []field{
	intField("max_parallel_tasks", "Maximum tasks running at once per rank.", func(o *Options) *int { return &o.MaxParallelTasks }),
	stringField("placement_policy", "Placement policy: round_robin or affinity.", func(o *Options) *string { return &o.PlacementPolicy }),
	durationField("deadline", "Cancel the execution after this long (0 for none).", func(o *Options) *time.Duration { return &o.Deadline }),
	durationField("task_timeout", "Cancel the execution once one task runs this long (0 for none).", func(o *Options) *time.Duration { return &o.TaskTimeout }),
	boolField("mpi_enabled", "Distribute tasks over the worker ranks.", func(o *Options) *bool { return &o.MPIEnabled }),
	intField("ranks", "Process group size, coordinator included.", func(o *Options) *int { return &o.Ranks }),
	stringField("transport", "Rank transport: inmem or socketio.", func(o *Options) *string { return &o.Transport }),
	stringField("host", "Host the socket.io transport listens on.", func(o *Options) *string { return &o.Host }),
	intField("base_port", "First socket.io port; rank r listens on base_port+r (0 picks free ports).", func(o *Options) *int { return &o.BasePort }),
	intField("pool_size", "Worker slots on each worker rank.", func(o *Options) *int { return &o.PoolSize }),
	intField("max_retries", "Resubmissions of a task lost with its rank.", func(o *Options) *int { return &o.MaxRetries }),
	durationField("heartbeat_interval", "How often worker ranks send heartbeats.", func(o *Options) *time.Duration { return &o.HeartbeatInterval }),
	durationField("heartbeat_timeout", "Silence after which a rank is unreachable (0 disables).", func(o *Options) *time.Duration { return &o.HeartbeatTimeout }),
	durationField("cancel_grace", "How long cancellation waits for worker ranks.", func(o *Options) *time.Duration { return &o.CancelGrace }),
	intField("queue_capacity", "Outbound message queue capacity per peer.", func(o *Options) *int { return &o.QueueCapacity }),
	int64Field("arena_capacity", "Shared object store capacity in bytes (0 for unbounded).", func(o *Options) *int64 { return &o.ArenaCapacity }),
}

// ApplyEnv overrides options from VIZFLOW_* variables found by lookup.
func (o *Options) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, f := range fields {
		s, ok := lookup(f.env())
		if !ok || s == "" {
			continue
		}
		if err := f.set(o, s); err != nil {
			return fmt.Errorf("invalid %s=%q: %w", f.env(), s, err)
		}
	}
	return nil
}

// RegisterFlags adds one flag per option to fs, showing the defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultOptions()
	for _, f := range fields {
		f.register(fs, f.flag(), f.usage, d)
	}
}

// ApplyFlags overrides options with the flags the user actually set.
func (o *Options) ApplyFlags(fs *pflag.FlagSet) error {
	for _, f := range fields {
		fl := fs.Lookup(f.flag())
		if fl == nil || !fl.Changed {
			continue
		}
		if err := f.set(o, fl.Value.String()); err != nil {
			return fmt.Errorf("invalid --%s: %w", f.flag(), err)
		}
	}
	return nil
}

// Validate rejects options no execution could run with.
func (o Options) Validate() error {
	var errs []error
	if o.MaxParallelTasks < 1 {
		errs = append(errs, fmt.Errorf("max_parallel_tasks must be at least 1, got %d", o.MaxParallelTasks))
	}
	if _, err := placement.ParsePolicy(o.PlacementPolicy); err != nil {
		errs = append(errs, err)
	}
	if o.Ranks < 1 {
		errs = append(errs, fmt.Errorf("ranks must be at least 1, got %d", o.Ranks))
	}
	if o.Transport != cluster.TransportInMemory && o.Transport != cluster.TransportSocketIO {
		errs = append(errs, fmt.Errorf("unknown transport %q", o.Transport))
	}
	if o.Deadline < 0 {
		errs = append(errs, fmt.Errorf("deadline must not be negative, got %s", o.Deadline))
	}
	if o.TaskTimeout < 0 {
		errs = append(errs, fmt.Errorf("task_timeout must not be negative, got %s", o.TaskTimeout))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", o.MaxRetries))
	}
	if o.ArenaCapacity < 0 {
		errs = append(errs, fmt.Errorf("arena_capacity must not be negative, got %d", o.ArenaCapacity))
	}
	if o.BasePort < 0 || o.BasePort+o.Ranks > 65536 {
		errs = append(errs, fmt.Errorf("base_port %d leaves no room for %d ranks", o.BasePort, o.Ranks))
	}
	return errors.Join(errs...)
}

// Distributed reports whether executions should use worker ranks.
func (o Options) Distributed() bool {
	return o.MPIEnabled && o.Ranks > 1
}

// ExecOptions converts o into per-execution orchestrator options.
func (o Options) ExecOptions() orchestrator.Options {
	policy, _ := placement.ParsePolicy(o.PlacementPolicy)
	return orchestrator.Options{
		MaxParallelTasks: o.MaxParallelTasks,
		Placement:        policy,
		Deadline:         o.Deadline,
		TaskTimeout:      o.TaskTimeout,
		MPIEnabled:       o.MPIEnabled,
		MaxRetries:       o.MaxRetries,
		HeartbeatTimeout: o.HeartbeatTimeout,
		CancelGrace:      o.CancelGrace,
	}
}

// ClusterConfig converts o into the process group layout.
func (o Options) ClusterConfig() cluster.Config {
	return cluster.Config{
		Ranks:             o.Ranks,
		Transport:         o.Transport,
		Host:              o.Host,
		BasePort:          o.BasePort,
		PoolSize:          o.PoolSize,
		QueueCapacity:     o.QueueCapacity,
		HeartbeatInterval: o.HeartbeatInterval,
	}
}
