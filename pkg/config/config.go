package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xplshn/ganc/pkg/cli"
	"modernc.org/libqbe"
)

// EntrySymbol is the name a source function called "main" is emitted under.
// The runtime's own main calls it.
const EntrySymbol = "_anc_main"

type Feature int

const (
	FeatForwardRefs Feature = iota
	FeatNestedFuncs
	FeatCount
)

type Warning int

const (
	WarnUnreachableCode Warning = iota
	WarnImplicitReturn
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features    map[Feature]Info
	Warnings    map[Warning]Info
	FeatureMap  map[string]Feature
	WarningMap  map[string]Warning
	BackendName string
	// BackendTarget is the QBE target name, e.g. "amd64_sysv".
	BackendTarget  string
	GOOS, GOARCH   string
	WordSize       int
	WordType       string
	StackAlignment int
	EntrySymbol    string
	// Log receives the "ganc: info:" lines. Nil discards them.
	Log io.Writer
}

func NewConfig() *Config {
	cfg := &Config{
		Features:    make(map[Feature]Info),
		Warnings:    make(map[Warning]Info),
		FeatureMap:  make(map[string]Feature),
		WarningMap:  make(map[string]Warning),
		BackendName: "qbe",
		WordSize:    8,
		WordType:    "l",
		EntrySymbol: EntrySymbol,
	}

	features := map[Feature]Info{
		FeatForwardRefs: {"forward-refs", false, "Register every function signature before lowering bodies, so calls may precede definitions."},
		FeatNestedFuncs: {"nested-funcs", true, "Allow function declarations inside function bodies."},
	}

	warnings := map[Warning]Info{
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements after a return."},
		WarnImplicitReturn:  {"implicit-return", false, "Warn when a function falls off its end and returns 0."},
		WarnExtra:           {"extra", false, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) infof(format string, args ...any) {
	if c.Log != nil {
		fmt.Fprintf(c.Log, "ganc: info: "+format+"\n", args...)
	}
}

// SetTarget configures the compiler for a backend and target. The target
// string is "<backend>" or "<backend>/<qbe-target>"; an empty QBE target
// means the host's default.
func (c *Config) SetTarget(goos, goarch, target string) {
	c.GOOS, c.GOARCH = goos, goarch
	backend, qbeTarget, _ := strings.Cut(target, "/")
	if backend == "" {
		backend = "qbe"
	}
	c.BackendName = backend

	if qbeTarget == "" {
		c.BackendTarget = libqbe.DefaultTarget(goos, goarch)
		c.infof("no target specified, defaulting to host target '%s'", c.BackendTarget)
	} else {
		c.BackendTarget = qbeTarget
		c.infof("using specified target '%s'", c.BackendTarget)
	}

	switch c.BackendTarget {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		c.WordSize, c.WordType, c.StackAlignment = 8, "l", 16
	case "arm", "rv32":
		c.WordSize, c.WordType, c.StackAlignment = 4, "w", 8
	default:
		fmt.Fprintf(os.Stderr, "ganc: warning: unrecognized or unsupported QBE target '%s'.\n", c.BackendTarget)
		fmt.Fprintf(os.Stderr, "ganc: warning: defaulting to 64-bit properties. Compilation may fail.\n")
		c.WordSize, c.WordType, c.StackAlignment = 8, "l", 16
	}
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyFlag applies one -W or -F style switch. Unknown names are reported.
func (c *Config) ApplyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return nil
	}

	if isWarning {
		w, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(w, enable)
		return nil
	}
	f, ok := c.FeatureMap[name]
	if !ok {
		return fmt.Errorf("unknown feature '%s'", name)
	}
	c.SetFeature(f, enable)
	return nil
}

// SetupFlagGroups registers -W<name>/-Wno-<name> and -F<name>/-Fno-<name>
// switches on fs. The returned entries are indexed by Warning and Feature
// and are applied with ApplyFlagGroups once the command line is parsed.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features []cli.FlagGroupEntry) {
	warnings = make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		warnings[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description, Default: info.Enabled,
			Enabled: new(bool), Disabled: new(bool),
		}
	}
	features = make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		features[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description, Default: info.Enabled,
			Enabled: new(bool), Disabled: new(bool),
		}
	}
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings.", "warning flag", "Available Warnings:", warnings)
	fs.AddFlagGroup("Feature Flags", "Enable or disable language features.", "feature flag", "Available Features:", features)
	return warnings, features
}

// ApplyFlagGroups copies the parsed switches into the config. A -Wno-/-Fno-
// switch wins over its positive form.
func (c *Config) ApplyFlagGroups(warnings, features []cli.FlagGroupEntry) {
	for i, entry := range warnings {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetWarning(Warning(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, entry := range features {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetFeature(Feature(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}
