package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"defectlab/internal/technique"
)

var techniquesCmd = &cobra.Command{
	Use:   "techniques",
	Short: "List available prompting techniques",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range technique.Available() {
			marker := " "
			if name == cfg.Analysis.Technique {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		fmt.Println("\n* = configured default")
		return nil
	},
}
