package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/windlink/internal/models"
)

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model catalog with variants",
		Run: func(cmd *cobra.Command, args []string) {
			for _, info := range models.List() {
				if len(info.Variants) == 0 {
					fmt.Println(info.ID)
					continue
				}
				fmt.Printf("%s  (%s)\n", info.ID, strings.Join(info.Variants, ", "))
			}
		},
	}
}
