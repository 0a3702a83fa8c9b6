package main

import (
	"context"
	"os"

	"github.com/qiniu/alert-policies/internal/cli"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	cli.SetVersionInfo(version, buildDate, gitCommit)
	if err := cli.NewRootCommand().Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
