package main

import (
	"go.uber.org/zap"

	"github.com/colgrid/gridstore/cmd/gridstore/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		zap.L().Fatal("gridstore exited", zap.Error(err))
	}
}
