package sort

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Parameters of one distributed sort
type Config struct {
	NWorker int   // number of workers, must be a power of two
	Size    int64 // total number of values, must be divisible by NWorker

	// Limit on each compare-exchange. Zero waits forever.
	ExchangeTimeout time.Duration

	// Maximum number of local sorts running at once in this process. Zero
	// means no limit.
	SortParallelism int

	// Defaults to a logger at WarnLevel
	Logger logrus.FieldLogger
}

func DefaultLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

// Reject configurations the network can't sort before any worker starts
func (cfg *Config) Validate() error {
	if _, err := Dimension(cfg.NWorker); err != nil {
		return err
	}
	if cfg.Size < (int64)(cfg.NWorker) {
		return configErrorf("dataset size %v smaller than worker count %v", cfg.Size, cfg.NWorker)
	}
	if cfg.Size%(int64)(cfg.NWorker) != 0 {
		return configErrorf("dataset size %v not divisible by worker count %v", cfg.Size, cfg.NWorker)
	}
	if cfg.ExchangeTimeout < 0 {
		return configErrorf("negative exchange timeout %v", cfg.ExchangeTimeout)
	}
	if cfg.SortParallelism < 0 {
		return configErrorf("negative sort parallelism %v", cfg.SortParallelism)
	}
	return nil
}

// Number of values owned by each worker
func (cfg *Config) PartLen() int {
	return (int)(cfg.Size / (int64)(cfg.NWorker))
}

func (cfg *Config) logger() logrus.FieldLogger {
	if cfg.Logger == nil {
		return DefaultLogger()
	}
	return cfg.Logger
}
