package toolgate

import "github.com/pkamenev/toolgate/internal/tools"

// Option configures a Client at creation time.
type Option func(*optionConfig)

type optionConfig struct {
	configPath string
	dataDir    string
	launcher   tools.AppLauncher
	elevation  tools.ElevationRunner
}

// WithConfig sets the path to a config YAML file.
func WithConfig(path string) Option {
	return func(c *optionConfig) { c.configPath = path }
}

// WithDataDir overrides the data directory; all unset paths are derived
// from it.
func WithDataDir(dir string) Option {
	return func(c *optionConfig) { c.dataDir = dir }
}

// WithAppLauncher replaces how launch_app starts applications.
func WithAppLauncher(l tools.AppLauncher) Option {
	return func(c *optionConfig) { c.launcher = l }
}

// WithElevationRunner replaces how elevate executes privileged commands.
func WithElevationRunner(r tools.ElevationRunner) Option {
	return func(c *optionConfig) { c.elevation = r }
}
