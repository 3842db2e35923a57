package config

// Defaults holds optional values read from ~/.trevorproxy/config.yaml that
// seed persistent flag defaults across invocations. Every field here can be
// overridden on the command line.
type Defaults struct {
	ListenAddress string `yaml:"listen_address"`
	Port          int    `yaml:"port"`
	Verbose       bool   `yaml:"verbose"`
	Quiet         bool   `yaml:"quiet"`
}

// DefaultValues returns the built-in Defaults used when no config file is
// present.
func DefaultValues() Defaults {
	return Defaults{
		ListenAddress: "127.0.0.1",
		Port:          1080,
	}
}

// SubnetConfig is the fully-resolved set of options for `trevorproxy subnet`.
type SubnetConfig struct {
	ListenAddress string
	Port          int
	Subnet        string
	Interface     string
	Username      string
	Password      string
	Verbose       bool
	Quiet         bool
}

// SSHConfig is the fully-resolved set of options for `trevorproxy ssh`.
type SSHConfig struct {
	ListenAddress string
	Port          int
	Hosts         []string
	KeyPath       string
	Passphrase    string
	BasePort      int
	Direct        bool
	DispatchAddr  string
	Username      string
	Password      string
	Verbose       bool
	Quiet         bool
}
