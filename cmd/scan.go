package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/label-copilot/internal/model"
)

var (
	scanImage  string
	scanHealth string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Analyze a single food label image",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		in := model.Input{ImagePath: scanImage, UserRawHealth: scanHealth}
		result, err := env.Pipeline.Run(ctx, in)
		if err != nil {
			if result != nil {
				_ = writeResult(os.Stdout, result)
			}
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("scan complete",
			zap.String("run_id", result.RunID),
			zap.String("brand", result.State.BrandName),
			zap.Bool("degraded", result.Degraded()),
		)

		return writeResult(os.Stdout, result)
	},
}

// writeResult prints the result as indented JSON.
func writeResult(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func init() {
	scanCmd.Flags().StringVar(&scanImage, "image", "", "label image path or s3://bucket/key (required)")
	scanCmd.Flags().StringVar(&scanHealth, "health", "", "free-text health conditions, allergies and diet")
	_ = scanCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(scanCmd)
}
