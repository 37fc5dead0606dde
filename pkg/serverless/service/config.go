package service

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/simbatch/pkg/serverless/sched"
	"github.com/cuemby/simbatch/pkg/simerr"
)

// Algorithm names a serverless scheduler policy: random, fcfs, or
// balance.
type Algorithm string

const (
	AlgorithmFCFS    Algorithm = "fcfs"
	AlgorithmRandom  Algorithm = "random"
	AlgorithmBalance Algorithm = "balance"
)

// Config is the serverless compute service's typed configuration.
// The three bandwidth knobs stand in for the underlying kernel's
// bandwidth/latency/duration model, which this module does not
// implement, analogous to how the batch service's rjms-padding-delay
// is a config knob rather than a kernel-provided constant.
type Config struct {
	SchedulerAlgorithm           Algorithm `yaml:"scheduler_algorithm"`
	RandomSeed                    int64    `yaml:"random_seed"`
	RemoteDownloadBytesPerSecond int64    `yaml:"remote_download_bytes_per_second"`
	NodeCopyBytesPerSecond       int64    `yaml:"node_copy_bytes_per_second"`
	RAMLoadBytesPerSecond        int64    `yaml:"ram_load_bytes_per_second"`
}

// DefaultConfig returns FCFS scheduling over a generous default
// bandwidth model.
func DefaultConfig() Config {
	return Config{
		SchedulerAlgorithm:           AlgorithmFCFS,
		RemoteDownloadBytesPerSecond: 100 << 20,
		NodeCopyBytesPerSecond:       200 << 20,
		RAMLoadBytesPerSecond:        500 << 20,
	}
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, simerr.Wrap(simerr.KindInvalidRequest, err, "reading serverless service config %s", path)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, simerr.Wrap(simerr.KindInvalidRequest, err, "parsing serverless service config %s", path)
	}
	return cfg, nil
}

// BuildScheduler constructs the sched.Scheduler named by cfg.
func (cfg Config) BuildScheduler() (sched.Scheduler, error) {
	switch cfg.SchedulerAlgorithm {
	case AlgorithmFCFS, "":
		return sched.NewFCFSScheduler(), nil
	case AlgorithmRandom:
		return sched.NewRandomScheduler(cfg.RandomSeed), nil
	case AlgorithmBalance:
		return sched.NewWorkloadBalanceScheduler(), nil
	default:
		return nil, simerr.InvalidArgument("unknown serverless scheduler algorithm %q", cfg.SchedulerAlgorithm)
	}
}
