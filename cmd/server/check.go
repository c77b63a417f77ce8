package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/butterfly-api/internal/labels"
	"github.com/Brownie44l1/butterfly-api/internal/model"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the model and print its tensor contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			rt, err := model.Open(e.modelOptions())
			if err != nil {
				return fmt.Errorf("model check failed: %w", err)
			}
			defer rt.Close()

			catalog, err := e.catalog()
			if err != nil {
				return err
			}
			renderInfo(cmd.OutOrStdout(), rt.Info(), catalog.Len())
			return nil
		},
	}
}

func renderInfo(w io.Writer, info model.Info, described int) {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk([][]string{
		{"backend", string(info.Backend)},
		{"path", info.Path},
		{"input", fmt.Sprintf("%s %v", info.InputName, info.InputShape)},
		{"output", fmt.Sprintf("%s %v", info.OutputName, info.OutputShape)},
		{"classes", strconv.Itoa(info.Classes)},
		{"described species", fmt.Sprintf("%d/%d", described, labels.Count)},
	})
	table.Render()
}
