package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"sparkrt/sparkos/kernel"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// minPriorities covers the fixed priorities the workload threads use.
const minPriorities = 8

// maxHeartbeat keeps every derived wait below the timer range.
const maxHeartbeat = kernel.TickTimerMax / 4

// Config describes one run of the system.
type Config struct {
	Kernel   KernelConfig   `yaml:"kernel"`
	Run      RunConfig      `yaml:"run"`
	Workload WorkloadConfig `yaml:"workload"`
}

type KernelConfig struct {
	Priorities int `yaml:"priorities"`
	TickHz     int `yaml:"tick_hz"`
}

type RunConfig struct {
	// Ticks stops the run after that many ticks; 0 runs until cancelled.
	Ticks uint64 `yaml:"ticks"`
	// Virtual advances time as fast as the threads go idle.
	Virtual bool `yaml:"virtual"`
}

type WorkloadConfig struct {
	Producers      int    `yaml:"producers"`
	Consumers      int    `yaml:"consumers"`
	QueueSlots     int    `yaml:"queue_slots"`
	MessageSize    int    `yaml:"message_size"`
	PoolBlocks     int    `yaml:"pool_blocks"`
	BlockSize      int    `yaml:"block_size"`
	Readers        int    `yaml:"readers"`
	Writers        int    `yaml:"writers"`
	HeartbeatTicks uint32 `yaml:"heartbeat_ticks"`
	BatchSize      int    `yaml:"batch_size"`
	UrgentEvery    int    `yaml:"urgent_every"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Kernel: KernelConfig{Priorities: 16, TickHz: 1000},
		Run:    RunConfig{Ticks: 2000, Virtual: true},
		Workload: WorkloadConfig{
			Producers:      2,
			Consumers:      2,
			QueueSlots:     8,
			MessageSize:    32,
			PoolBlocks:     4,
			BlockSize:      32,
			Readers:        2,
			Writers:        1,
			HeartbeatTicks: 50,
			BatchSize:      16,
			UrgentEvery:    8,
		},
	}
}

// LoadConfig reads a YAML file over the defaults. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var merr error
	bad := func(format string, args ...any) {
		merr = multierror.Append(merr, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Kernel.Priorities < minPriorities || c.Kernel.Priorities > kernel.PriorityLevelsMax {
		bad("kernel.priorities must be within %d..%d, got %d", minPriorities, kernel.PriorityLevelsMax, c.Kernel.Priorities)
	}
	if c.Kernel.TickHz <= 0 {
		bad("kernel.tick_hz must be positive, got %d", c.Kernel.TickHz)
	}

	w := c.Workload
	if w.Producers < 1 {
		bad("workload.producers must be at least 1, got %d", w.Producers)
	}
	if w.Consumers < 1 {
		bad("workload.consumers must be at least 1, got %d", w.Consumers)
	}
	if w.QueueSlots < 1 {
		bad("workload.queue_slots must be at least 1, got %d", w.QueueSlots)
	}
	if w.MessageSize < frameHeaderSize {
		bad("workload.message_size must be at least %d, got %d", frameHeaderSize, w.MessageSize)
	}
	if w.PoolBlocks < 1 {
		bad("workload.pool_blocks must be at least 1, got %d", w.PoolBlocks)
	}
	if w.BlockSize < w.MessageSize {
		bad("workload.block_size must hold a message (%d), got %d", w.MessageSize, w.BlockSize)
	}
	if w.Readers < 0 || w.Writers < 0 {
		bad("workload.readers and workload.writers must not be negative")
	}
	if w.HeartbeatTicks == 0 || kernel.Tick(w.HeartbeatTicks) > maxHeartbeat {
		bad("workload.heartbeat_ticks must be within 1..%d, got %d", maxHeartbeat, w.HeartbeatTicks)
	}
	if w.BatchSize < 1 {
		bad("workload.batch_size must be at least 1, got %d", w.BatchSize)
	}
	if w.UrgentEvery < 0 {
		bad("workload.urgent_every must not be negative, got %d", w.UrgentEvery)
	}

	return merr
}

// YAML renders the configuration.
func (c Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
