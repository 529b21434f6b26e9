package main

import (
	"os"

	"github.com/spf13/afero"
	"github.com/yanshicheng/archive-nova/application/archive-uploader/cmd"
)

func main() {
	if err := cmd.NewRootCmd(afero.NewOsFs(), os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
