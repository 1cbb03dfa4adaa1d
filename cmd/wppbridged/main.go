package main

import (
	"flag"

	"github.com/matheus3301/wppbridge/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config.toml (default <data dir>/config.toml)")
	dataDirFlag := flag.String("data-dir", "", "data directory (overrides config)")
	flag.Parse()

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: *configFlag, DataDir: *dataDirFlag}),
	)

	app.Run()
}
