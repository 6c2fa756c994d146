package version

// Set at build time with -ldflags "-X github.com/linlay/agent-webclient/pkg/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
)
