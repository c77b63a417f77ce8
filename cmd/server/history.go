package main

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/butterfly-api/internal/handlers"
	"github.com/Brownie44l1/butterfly-api/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			st, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			n, _ := cmd.Flags().GetInt("limit")
			rows, err := st.RecentPredictions(cmd.Context(), n)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "number of rows")
	return cmd
}

func renderHistory(w io.Writer, rows []store.Prediction) {
	data := make([][]string, 0, len(rows))
	for _, p := range rows {
		data = append(data, []string{
			p.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			handlers.TitleCase(p.Label),
			handlers.FormatConfidence(p.Confidence),
			string(p.Source),
			p.Username,
			p.Filename,
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"WHEN", "SPECIES", "CONFIDENCE", "SOURCE", "USER", "FILE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
