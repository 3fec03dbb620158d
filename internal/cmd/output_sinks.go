package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/throttlegate/throttlegate/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// addOutputFlags registers --output-format and --out on cmd.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// openSink opens path for writing, or the command's stdout for "" and "-".
func openSink(cmd *cobra.Command, path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

// writeReport renders report with the command's output flags.
func writeReport(cmd *cobra.Command, report *output.Report) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	rendered, err := output.Render(format, report)
	if err != nil {
		return err
	}

	outPath, _ := cmd.Flags().GetString("out")
	sink, err := openSink(cmd, outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}
