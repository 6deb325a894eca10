package retrain

import "time"

type Config struct {
	// TOML file with the learning parameters, defaults are used when empty
	LearningConfig string `envconfig:"SURROGATE_LEARNING_CONFIG"`
	// how often the ground truth row count is checked
	Interval time.Duration `envconfig:"SURROGATE_RETRAIN_INTERVAL" default:"1m"`
	// no model is trained below this number of ground truth rows
	MinRows int `envconfig:"SURROGATE_RETRAIN_MIN_ROWS" default:"50"`
	// snapshots kept per schema, older ones are pruned
	MaxSnapshots  int           `envconfig:"SURROGATE_MAX_SNAPSHOTS" default:"10"`
	RebuildDBTime time.Duration `envconfig:"SURROGATE_REBUILD_DB_TIME" default:"10m"`
	// id of a stored snapshot to serve instead of the latest one, retraining and pruning are off
	PinSnapshot string `envconfig:"SURROGATE_PIN_SNAPSHOT"`
}
