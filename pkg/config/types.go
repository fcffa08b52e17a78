package config

// DEProfile holds differential-evolution knobs for one scenario family.
type DEProfile struct {
	Strategy      string  `yaml:"strategy" json:"strategy"`
	MaxIterations int     `yaml:"maxiter" json:"maxiter"`
	PopSize       int     `yaml:"popsize" json:"popsize"`
	Tol           float64 `yaml:"tol" json:"tol"`
	ATol          float64 `yaml:"atol" json:"atol"`
	MutationMin   float64 `yaml:"mutation_min" json:"mutation_min"`
	MutationMax   float64 `yaml:"mutation_max" json:"mutation_max"`
	Recombination float64 `yaml:"recombination" json:"recombination"`
	Seed          int64   `yaml:"seed" json:"seed"`
	Init          string  `yaml:"init" json:"init"`
}

// Config is the process configuration for kineticd.
type Config struct {
	HTTPAddr       string `yaml:"http_addr"`
	LogLevel       string `yaml:"log_level"`
	DataDir        string `yaml:"data_dir"`
	StorePath      string `yaml:"store_path"`
	CallbackURL    string `yaml:"callback_url"`
	CallbackSecret string `yaml:"callback_secret"`

	// Deconvolution is the default optimizer profile for peak fitting.
	Deconvolution DEProfile `yaml:"deconvolution"`

	// ModelBased is the default optimizer profile for reaction-network fits.
	ModelBased DEProfile `yaml:"model_based"`
}

// DefaultDeconvolutionProfile returns the peak-fitting optimizer defaults.
func DefaultDeconvolutionProfile() DEProfile {
	return DEProfile{
		Strategy:      "best1bin",
		MaxIterations: 1000,
		PopSize:       15,
		Tol:           0.01,
		ATol:          0,
		MutationMin:   0.5,
		MutationMax:   1.0,
		Recombination: 0.7,
		Init:          "latinhypercube",
	}
}

// DefaultModelBasedProfile returns the reaction-network optimizer defaults.
// Model-based evaluations integrate an ODE system per heating rate, so the
// budget is far smaller than for peak fitting.
func DefaultModelBasedProfile() DEProfile {
	return DEProfile{
		Strategy:      "best1bin",
		MaxIterations: 60,
		PopSize:       3,
		Tol:           0.01,
		ATol:          0,
		MutationMin:   0.5,
		MutationMax:   1.0,
		Recombination: 0.7,
		Init:          "latinhypercube",
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPAddr:      ":8080",
		LogLevel:      "info",
		DataDir:       "data",
		StorePath:     "calculations.json",
		Deconvolution: DefaultDeconvolutionProfile(),
		ModelBased:    DefaultModelBasedProfile(),
	}
}
