package main

import (
	"github.com/spf13/cobra"

	"chibi/internal/buildinfo"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("nilsim %s\n", buildinfo.Read())
		},
	})
}
