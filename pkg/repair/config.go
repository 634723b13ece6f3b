package repair

// Limits applied when Config leaves them at zero.
const (
	DefaultPassLimit      = 10000
	DefaultUTF8RetryLimit = 1000
	DefaultArtifactDir    = "var/logs"
)

// Config defines the tunables of a Repairer. Feature selection is made per
// call, see Repairer.ExtractContent.
type Config struct {
	// PassLimit caps the number of fixes a single pass may apply to one
	// document. A capped pass leaves the residue to the parser gate.
	// Default: 10000.
	PassLimit int `json:"pass_limit" yaml:"pass_limit"`

	// UTF8RetryLimit caps the invalid byte removal loop of the parser gate.
	// Default: 1000.
	UTF8RetryLimit int `json:"utf8_retry_limit" yaml:"utf8_retry_limit"`

	// ArtifactDir receives the wrapped buffer of documents that could not be
	// repaired. Empty disables artifacts.
	ArtifactDir string `json:"artifact_dir" yaml:"artifact_dir"`

	// Passes overrides the fixup passes. Nil means DefaultPasses().
	Passes []Pass `json:"-" yaml:"-"`

	// Patches overrides the site specific patches. Nil means
	// DefaultPatches(); an empty slice disables patching.
	Patches []Patch `json:"-" yaml:"-"`
}

// DefaultConfig returns the configuration used when New is given nil.
func DefaultConfig() *Config {
	return &Config{
		PassLimit:      DefaultPassLimit,
		UTF8RetryLimit: DefaultUTF8RetryLimit,
		ArtifactDir:    DefaultArtifactDir,
		Passes:         DefaultPasses(),
		Patches:        DefaultPatches(),
	}
}

// withDefaults returns a copy of c with zero limits and nil rule sets
// replaced by their defaults.
func (c Config) withDefaults() Config {
	if c.PassLimit <= 0 {
		c.PassLimit = DefaultPassLimit
	}
	if c.UTF8RetryLimit <= 0 {
		c.UTF8RetryLimit = DefaultUTF8RetryLimit
	}
	if c.Passes == nil {
		c.Passes = DefaultPasses()
	}
	if c.Patches == nil {
		c.Patches = DefaultPatches()
	}
	return c
}
