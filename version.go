package main

import "fmt"

// Set with -ldflags "-X main.gitSHA1=..." at build time.
var (
	gitSHA1   string = "unknown"
	gitDirty  string = "unknown"
	buildID   string = "unknown"
	buildDate string = "unknown"
)

const kamiVersion = "0.1.0"

func Version() string {
	v := fmt.Sprintf("kami %s (git:%s", kamiVersion, gitSHA1)
	if gitDirty != "" && gitDirty != "0" && gitDirty != "unknown" {
		v += "-dirty"
	}
	return fmt.Sprintf("%s, build:%s, date:%s)", v, buildID, buildDate)
}
