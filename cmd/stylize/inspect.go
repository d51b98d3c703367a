// cmd/stylize/inspect.go
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/SyedDaiam9101/style-transfer-service/internal/inference"
)

func newInspectCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the model's input and output names and shapes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, *configFile)
			if err != nil {
				return err
			}
			if cfg.UseMockInference {
				return fmt.Errorf("inspect needs a real model, not --mock")
			}

			inputs, outputs, err := inference.Inspect(cfg.Model, cfg.ONNXLibrary)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "model: %s\n", cfg.Model)
			printInfos(w, "input", inputs)
			printInfos(w, "output", outputs)
			return nil
		},
	}
}

func printInfos(w io.Writer, kind string, infos []ort.InputOutputInfo) {
	for _, info := range infos {
		fmt.Fprintf(w, "  %-6s %-24q shape=%v type=%v\n", kind, info.Name, info.Dimensions, info.DataType)
	}
}
