package ensemble

import "fmt"

type Config struct {
	// target committee size
	Members      int     `toml:"n_members"`
	TestFraction float64 `toml:"test_fraction"`
	// minimum per-dimension score for a candidate to be accepted
	ScoreThreshold float64 `toml:"score_thresh"`
	// hard cap on training attempts, accepted or not
	MaxAttempts int `toml:"max_model_tries"`
	// number of attempts trained concurrently
	Workers int   `toml:"workers"`
	Seed    int64 `toml:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Members:        5,
		TestFraction:   0.1,
		ScoreThreshold: 0.7,
		MaxAttempts:    200,
		Workers:        1,
	}
}

func (c Config) Validate() error {
	if c.Members < 1 {
		return fmt.Errorf("ensemble: members must be positive, got %d", c.Members)
	}
	if c.TestFraction < 0 || c.TestFraction >= 1 {
		return fmt.Errorf("ensemble: test fraction must be in [0,1), got %v", c.TestFraction)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("ensemble: max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.Workers < 1 {
		return fmt.Errorf("ensemble: workers must be positive, got %d", c.Workers)
	}
	return nil
}
