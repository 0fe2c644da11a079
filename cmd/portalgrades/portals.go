package main

import (
	"os"

	"portalgrades/internal/engines"
	"portalgrades/internal/registry"
	"portalgrades/internal/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var portalsCmd = &cobra.Command{
	Use:   "portals",
	Short: "Prints the portal keys students can be configured with.",
	Run: func(cmd *cobra.Command, args []string) {
		reg := registry.New()
		engines.RegisterAll(reg, telemetry.SlogAPI{}, engines.Options{})

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Portal"})
		for _, key := range reg.Keys() {
			t.AppendRow(table.Row{key})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
