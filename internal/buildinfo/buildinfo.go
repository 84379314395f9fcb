// Package buildinfo holds build metadata set with -ldflags.
package buildinfo

import "go.uber.org/zap"

// Set at link time, e.g. -X .../buildinfo.BuildVersion=v1.2.0.
var (
	BuildVersion string
	BuildDate    string
	BuildCommit  string
)

const product = "metrics-forwarder"

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Version returns the build version, or "dev" for unversioned builds.
func Version() string {
	if BuildVersion == "" {
		return "dev"
	}
	return BuildVersion
}

// UserAgent is sent with every request to the ingest endpoint.
func UserAgent() string {
	return product + "/" + Version()
}

// Log writes the build metadata at info level.
func Log(logger *zap.SugaredLogger) {
	logger.Infow("build info",
		"version", orNA(BuildVersion),
		"date", orNA(BuildDate),
		"commit", orNA(BuildCommit),
	)
}
