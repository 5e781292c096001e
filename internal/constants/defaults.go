package constants

// DefaultVersion is the default version of the application
const DefaultVersion = "0.1.0-dev"

// DefaultBuildTime is the default build time when not provided at build time
const DefaultBuildTime = "unknown"

// DefaultGitCommit is the default git commit hash when not provided at build time
const DefaultGitCommit = "unknown"

// DefaultGoVersion is the default Go version when not provided at build time
const DefaultGoVersion = "unknown"

// DefaultAddr is the default HTTP listen address
const DefaultAddr = ":5000"

// MetricsNamespace prefixes every Prometheus metric name
const MetricsNamespace = "ecardcut"

// Working directory names
const (
	DirUploads   = "uploads"
	DirConverted = "converted"
	DirCropped   = "cropped"
	DirPassport  = "passport_photos"
)

// DefaultDirectories returns the working directories in sweep order.
func DefaultDirectories() []string {
	return []string{DirUploads, DirConverted, DirCropped, DirPassport}
}
