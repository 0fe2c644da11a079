package main

import (
	"fmt"
	"strconv"

	"portalgrades/lib/serviceutil"
	"portalgrades/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configName string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "portalgrades",
	Short: "portalgrades scrapes student grades from school portals.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configName, "config", "c", "config.json5", "config file, searched for from the working directory up")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug messages")

	rootCmd.AddCommand(runCmd, scheduleCmd, insertCmd, importCmd, exportCmd, portalsCmd)
}

// franchiseFlag is an optional int64 flag.
type franchiseFlag struct {
	id *int64
}

func (f *franchiseFlag) String() string {
	if f.id == nil {
		return ""
	}
	return strconv.FormatInt(*f.id, 10)
}

func (f *franchiseFlag) Set(value string) error {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("franchise must be a number: %w", err)
	}
	f.id = &id
	return nil
}

func (f *franchiseFlag) Type() string {
	return "id"
}

func main() {
	ctx := serviceutil.SignalContext()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		serviceutil.Fatal("portalgrades", err)
	}
}
