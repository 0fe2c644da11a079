package main

import (
	"fmt"
	"os"

	"portalgrades/internal/export"
	"portalgrades/internal/store"

	"github.com/spf13/cobra"
)

var (
	exportOut       string
	exportFranchise franchiseFlag
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Writes the weekly grades of every student into an xlsx workbook.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		config, err := loadConfig(configName)
		if err != nil {
			return err
		}
		db, err := store.Open(ctx, config.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		err = export.Write(ctx, db, f, export.Options{FranchiseID: exportFranchise.id})
		if err != nil {
			f.Close()
			os.Remove(exportOut)
			return err
		}
		err = f.Close()
		if err != nil {
			return err
		}
		fmt.Println(exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "grades.xlsx", "workbook to write")
	exportCmd.Flags().Var(&exportFranchise, "franchise", "only export this franchise")
}
