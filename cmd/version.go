package cmd

import "fmt"

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// runVersion prints build information.
func runVersion() {
	fmt.Printf("chatbot %s (commit %s, built %s)\n", AppVersion, GitCommit, BuildTime)
}
