// cmd/stylize/run.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SyedDaiam9101/style-transfer-service/internal/bitmap"
)

func newRunCmd(configFile *string) *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Stylize one image and write the result as PNG",
		Example: "  stylize run --in photo.jpg --out styled.png\n  stylize run --in https://example.com/cat.png --mock",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, *configFile)
			if err != nil {
				return err
			}

			orch, adapter := buildPipeline(cfg, logger, nil)
			defer adapter.Close()

			res, err := orch.Run(cmd.Context(), in)
			if err != nil {
				return err
			}
			png, err := bitmap.EncodePNG(res.Bitmap)
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d in %.4fs\n", out, res.Bitmap.Width, res.Bitmap.Height, res.Seconds())
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Source image: file path, http(s) URL or data URL")
	cmd.Flags().StringVar(&out, "out", "styled.png", "Output PNG path")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
