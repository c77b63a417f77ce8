package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/butterfly-api/internal/handlers"
	"github.com/Brownie44l1/butterfly-api/internal/imageio"
	"github.com/Brownie44l1/butterfly-api/internal/labels"
	"github.com/Brownie44l1/butterfly-api/internal/model"
	"github.com/Brownie44l1/butterfly-api/internal/pipeline"
	"github.com/Brownie44l1/butterfly-api/internal/postprocess"
	"github.com/Brownie44l1/butterfly-api/internal/store"
)

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify FILE...",
		Short: "Classify local image files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runClassify,
	}
	cmd.Flags().IntP("top", "k", 3, "number of species to list per image")
	cmd.Flags().Bool("record", false, "store the top prediction in the history database")
	return cmd
}

// fileResult is one classified file; Err is set instead of Top on failure.
type fileResult struct {
	Path string
	Top  []postprocess.Prediction
	Err  error
}

func runClassify(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	k, _ := cmd.Flags().GetInt("top")
	k = min(max(k, 1), labels.Count)

	rt, err := model.Open(e.modelOptions())
	if err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}
	defer rt.Close()
	p := pipeline.New(rt, e.logger)

	var st *store.Store
	if record, _ := cmd.Flags().GetBool("record"); record {
		if st, err = e.openStore(cmd.Context()); err != nil {
			return err
		}
		defer st.Close()
	}

	results := make([]fileResult, 0, len(args))
	failed := 0
	for _, path := range args {
		res := fileResult{Path: path}
		dec, err := imageio.DecodeFile(path, e.cfg.MaxUpload)
		if err == nil {
			res.Top, err = p.Rank(cmd.Context(), dec.Image, k)
		}
		if err != nil {
			res.Err = err
			failed++
		} else if st != nil {
			err := st.RecordPrediction(cmd.Context(), &store.Prediction{
				Source:     store.SourceCLI,
				Filename:   filepath.Base(path),
				Label:      res.Top[0].Label,
				Confidence: res.Top[0].Confidence,
			})
			if err != nil {
				e.logger.Warn("could not record prediction", "file", path, "error", err)
			}
		}
		results = append(results, res)
	}

	renderResults(cmd.OutOrStdout(), results)
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be classified", failed, len(args))
	}
	return nil
}

func renderResults(w io.Writer, results []fileResult) {
	var data [][]string
	for _, r := range results {
		name := filepath.Base(r.Path)
		if r.Err != nil {
			data = append(data, []string{name, "-", "error: " + r.Err.Error(), ""})
			continue
		}
		for i, pred := range r.Top {
			data = append(data, []string{name, strconv.Itoa(i + 1), handlers.TitleCase(pred.Label), handlers.FormatConfidence(pred.Confidence)})
			name = ""
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"FILE", "RANK", "SPECIES", "CONFIDENCE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
