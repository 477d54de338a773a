package version

// Set at build time with -ldflags "-X sensorwatch/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func GetVersion() string {
	return Version
}

// GetFullVersion returns the version with commit and build date.
func GetFullVersion() string {
	return Version + " (commit: " + Commit + ", built: " + BuildDate + ")"
}
