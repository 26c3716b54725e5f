package main

import "fmt"

// set with -ldflags "-X main.gitSHA1=..."
var (
	gitSHA1   string = "unknown"
	gitDirty  string = "unknown"
	buildDate string = "unknown"
)

func buildInfo() string {
	info := fmt.Sprintf("wcamd git:%s", gitSHA1)
	if gitDirty != "" && gitDirty != "0" && gitDirty != "unknown" {
		info += "-dirty"
	}
	return info + " built:" + buildDate
}
