package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

func create(recreate, seed bool) error {
	_, err := os.Stat("go.mod")
	if os.IsNotExist(err) {
		return fmt.Errorf("the dev environment must be created in the repository root (the same directory as the 'go.mod' file)")
	}

	if recreate {
		err = os.RemoveAll("dev/.state")
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	err = os.MkdirAll("dev/.state", 0777)
	if err != nil && !os.IsExist(err) {
		return err
	}

	err = CreateDB(seed)
	if err != nil {
		return err
	}
	err = WriteLocalConfig()
	if err != nil {
		return err
	}
	PrintConfigLocations()

	return nil
}

func main() {
	recreate := flag.Bool("recreate", false, "recreate the dev environment from scratch")
	seed := flag.Bool("seed", false, "fill the dev database with demo students")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: go run ./dev [flags] [%s]\n", strings.Join(actionNames(), "|"))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() > 0 {
		err := runAction(flag.Arg(0))
		if err != nil {
			slog.Error("dev action failed", "action", flag.Arg(0), "err", err.Error())
			os.Exit(1)
		}
		return
	}

	err := create(*recreate, *seed)
	if err != nil {
		slog.Error("failed to create dev environment", "err", err.Error())
		os.Exit(1)
	}

	slog.Info("dev environment created sucessfully!")
}
