package util

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

const AppName = "meilibridge"

var (
	version      = readVersionFile(".version") // value from VERSION file
	buildDate    = "1970-01-01T00:00:00Z"      // output from `date -u +'%Y-%m-%dT%H:%M:%SZ'`
	gitCommit    = "internal"                  // output from `git rev-parse HEAD`
	gitTag       = ""                          // output from `git describe --exact-match --tags HEAD` (if clean tree state)
	gitTreeState = ""                          // determined from `git status --porcelain`. either 'clean' or 'dirty'
)

type Version struct {
	AppName      string
	Version      string `json:"version"`
	BuildDate    string `json:"buildDate"`
	GitCommit    string `json:"gitCommit"`
	GitTag       string `json:"gitTag"`
	GitTreeState string `json:"gitTreeState"`
	GoVersion    string `json:"goVersion"`
	Compiler     string `json:"compiler"`
	Platform     string `json:"platform"`
}

func GetVersion() Version {
	return Version{
		AppName:      AppName,
		Version:      version,
		BuildDate:    buildDate,
		GitCommit:    gitCommit,
		GitTag:       gitTag,
		GitTreeState: gitTreeState,
		GoVersion:    runtime.Version(),
		Compiler:     runtime.Compiler,
		Platform:     fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func readVersionFile(filename string) string {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "dev" // 默认值
	}
	return strings.TrimSpace(string(data))
}
