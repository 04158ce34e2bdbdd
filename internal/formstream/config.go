package formstream

import "time"

const (
	DefaultMaxFileCount = 10
	DefaultMaxFileSize  = 25 << 20 // 25 MiB
	DefaultMaxFieldSize = 1 << 20
	DefaultTimeout      = 30 * time.Second
)

// Config bounds a single upload. The zero value of each field selects its
// default.
type Config struct {
	// MaxFileCount is how many file parts are processed; later parts are
	// drained and counted in Result.Dropped.
	MaxFileCount int
	MaxFileSize  int64
	MaxFieldSize int64
	// Timeout is the deadline for the whole upload, not per file.
	Timeout time.Duration
	// RequireFile turns an upload that produced no files into a
	// NO_FILES_ERROR failure instead of an empty success.
	RequireFile bool
	// BranchDepth is how many chunks each tee branch may buffer.
	BranchDepth int
	// OnSettle, if set, is called once per upload right after it settles.
	OnSettle func(Settlement)
}

// DefaultConfig returns the defaults used for zero fields.
func DefaultConfig() Config {
	return Config{
		MaxFileCount: DefaultMaxFileCount,
		MaxFileSize:  DefaultMaxFileSize,
		MaxFieldSize: DefaultMaxFieldSize,
		Timeout:      DefaultTimeout,
		BranchDepth:  defaultBranchDepth,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxFileCount <= 0 {
		c.MaxFileCount = d.MaxFileCount
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	if c.MaxFieldSize <= 0 {
		c.MaxFieldSize = d.MaxFieldSize
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.BranchDepth <= 0 {
		c.BranchDepth = d.BranchDepth
	}
	return c
}
