package main

// Config is the wirepeer-server configuration file shape, loaded from
// --config (default config.yaml), mirroring the cmd/aleutian
// PersistentPreRun pattern of reading and unmarshaling YAML once at
// startup.
type Config struct {
	Listen    string `yaml:"listen"`
	Verbosity int    `yaml:"verbosity"`
	Workers   int    `yaml:"workers"`
	RSABits   int    `yaml:"rsa_bits"`
}

func defaultConfig() Config {
	return Config{
		Listen:    ":7890",
		Verbosity: 2,
		Workers:   5,
		RSABits:   2048,
	}
}
