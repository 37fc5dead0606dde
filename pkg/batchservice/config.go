package batchservice

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/simbatch/pkg/batchsched"
	"github.com/cuemby/simbatch/pkg/simerr"
)

// Algorithm names a scheduling algorithm from the batch service config
// table.
type Algorithm string

const (
	AlgorithmFCFS                    Algorithm = "fcfs"
	AlgorithmConservativeBF          Algorithm = "conservative_bf"
	AlgorithmConservativeBFCoreLevel Algorithm = "conservative_bf_core_level"
	AlgorithmEasyBF                  Algorithm = "easy_bf"
	AlgorithmEasyBFDepth0            Algorithm = "easy_bf_depth0"
	AlgorithmEasyBFDepth1            Algorithm = "easy_bf_depth1"
)

// Config is the batch service's typed configuration, loaded from YAML.
// Every field name matches its option's dashed key with underscores,
// following yaml.v3's usual struct-tag convention.
type Config struct {
	SchedulingAlgorithm       Algorithm                   `yaml:"scheduling_algorithm"`
	HostSelectionAlgorithm    batchsched.HostSelectionPolicy `yaml:"host_selection_algorithm"`
	// TaskSelectionAlgorithm is accepted for config-surface parity but
	// unused: this module's CompoundJob actions run in a single fixed
	// sequence rather than being bin-packed onto individual cores
	// within a node allocation.
	TaskSelectionAlgorithm    string                      `yaml:"task_selection_algorithm"`
	BackfillingDepth          int                         `yaml:"backfilling_depth"`
	RJMSPaddingDelaySeconds   int64                       `yaml:"rjms_padding_delay_seconds"`
	SimulateComputationAsSleep bool                       `yaml:"simulate_computation_as_sleep"`
	WorkloadTraceFile         string                      `yaml:"workload_trace_file"`
	UseRealRuntimesAsRequested bool                       `yaml:"use_real_runtimes_as_requested"`
	IgnoreInvalidTraceJobs    bool                        `yaml:"ignore_invalid_trace_jobs"`
	SubmitTimeOfFirstTraceJob int64                       `yaml:"submit_time_of_first_trace_job"`
}

// DefaultConfig returns the configuration a batch service starts with
// when none is supplied: plain FCFS, first-fit host selection, no
// RJMS padding.
func DefaultConfig() Config {
	return Config{
		SchedulingAlgorithm:    AlgorithmFCFS,
		HostSelectionAlgorithm: batchsched.FirstFit,
	}
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, simerr.Wrap(simerr.KindInvalidRequest, err, "reading batch service config %s", path)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, simerr.Wrap(simerr.KindInvalidRequest, err, "parsing batch service config %s", path)
	}
	return cfg, nil
}

// BuildScheduler constructs the Scheduler named by cfg.
func (cfg Config) BuildScheduler() (batchsched.Scheduler, error) {
	policy := cfg.HostSelectionAlgorithm
	if policy == "" {
		policy = batchsched.FirstFit
	}
	switch cfg.SchedulingAlgorithm {
	case AlgorithmFCFS, "":
		return batchsched.NewFCFSScheduler(policy), nil
	case AlgorithmConservativeBF:
		return batchsched.NewConservativeBackfillScheduler(false), nil
	case AlgorithmConservativeBFCoreLevel:
		return batchsched.NewConservativeBackfillScheduler(true), nil
	case AlgorithmEasyBF:
		if cfg.BackfillingDepth != 0 && cfg.BackfillingDepth != 1 {
			return nil, simerr.InvalidArgument("easy backfilling depth must be 0 or 1, got %d", cfg.BackfillingDepth)
		}
		return batchsched.NewEasyBackfillScheduler(cfg.BackfillingDepth), nil
	case AlgorithmEasyBFDepth0:
		return batchsched.NewEasyBackfillScheduler(0), nil
	case AlgorithmEasyBFDepth1:
		return batchsched.NewEasyBackfillScheduler(1), nil
	default:
		return nil, simerr.InvalidArgument("unknown scheduling algorithm %q", cfg.SchedulingAlgorithm)
	}
}
