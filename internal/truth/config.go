package truth

type Config struct {
	// sqlite file holding the ground truth tables
	FileName string `envconfig:"SURROGATE_TRUTH_DB" default:"truth.db"`
	// create the ground truth table of the served schema when missing
	InitTables bool `envconfig:"SURROGATE_TRUTH_INIT_TABLES" default:"true"`
}
