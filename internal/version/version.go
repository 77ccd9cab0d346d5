// Package version holds build metadata, overridable with -ldflags:
//
//	go build -ldflags "-X github.com/haasonsaas/promptlens/internal/version.Version=0.2.0"
package version

// Version is the SDK release.
var Version = "0.1.0"

// Commit is the source revision, when known.
var Commit = "none"

// SDKHeader is the value sent in the X-SDK-Version header.
func SDKHeader() string {
	return "go-" + Version
}
