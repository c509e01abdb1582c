package buildconfig

// Build-time variables injected via ldflags:
//
//	-X github.com/nutrimama/nutrimama/internal/buildconfig.version=v1.2.0
var (
	version = "dev"
	commit  = "unknown"
)

const name = "nutrimama"

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// UserAgent identifies this build in logs and outgoing requests.
func UserAgent() string {
	return name + "/" + version + " (" + commit + ")"
}

// VersionInfo returns full version information for the /version endpoint.
func VersionInfo() map[string]string {
	return map[string]string{
		"name":    name,
		"version": version,
		"commit":  commit,
	}
}
