// Command gzflate decompresses gzip files on the command line, the
// way gzip -d does, but streaming through the gzflate package's
// from-scratch DEFLATE decoder rather than compress/gzip.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/schollz/progressbar/v2"
	"github.com/spf13/cobra"

	"github.com/coalman/gzflate/gzflate"
)

var (
	outputPath string
	keep       bool
	showBar    bool
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gzflate [file...]",
		Short: "Decompress gzip streams with a standalone DEFLATE decoder",
		Args:  cobra.ArbitraryArgs,
		RunE:  runRoot,
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write decompressed output to this path (default: strip .gz, or stdout for stdin)")
	cmd.Flags().BoolVarP(&keep, "keep", "k", false, "keep the input file instead of removing it after a successful decompression")
	cmd.Flags().BoolVar(&showBar, "progress", false, "show a progress bar while decompressing")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log each input as it is decompressed")
	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if len(args) == 0 {
		var out io.Writer = os.Stdout
		if outputPath != "" {
			f, err := os.Create(outputPath)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return decompressStream(logger, os.Stdin, out, -1)
	}

	for _, path := range args {
		if err := decompressFile(logger, path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func decompressFile(logger *slog.Logger, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	dstPath := outputPath
	if dstPath == "" {
		dstPath = strings.TrimSuffix(path, ".gz")
		if dstPath == path {
			dstPath = path + ".out"
		}
	}

	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer out.Close()

	logger.Info("decompressing", "input", path, "output", dstPath)
	if err := decompressStream(logger, in, out, info.Size()); err != nil {
		return err
	}

	if !keep {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

func decompressStream(logger *slog.Logger, r io.Reader, w io.Writer, size int64) error {
	if showBar && size > 0 {
		bar := progressbar.NewOptions64(size, progressbar.OptionSetBytes64(size))
		r = io.TeeReader(r, bar)
	}
	dec := gzflate.NewDecoder(r)

	n, err := io.Copy(w, dec)
	logger.Info("decompressed", "bytes", n)
	return err
}
