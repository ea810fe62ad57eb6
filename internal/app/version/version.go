package version

import "runtime"

// Default values are overridden at build time via -ldflags.
var (
	buildVersion = "dev"
	builtAt      = "unknown"
)

// Info represents the running build metadata.
type Info struct {
	BuildVersion string `json:"buildVersion"`
	BuiltAt      string `json:"builtAt"`
	GoVersion    string `json:"goVersion"`
}

func Get() Info {
	return Info{
		BuildVersion: buildVersion,
		BuiltAt:      builtAt,
		GoVersion:    runtime.Version(),
	}
}
