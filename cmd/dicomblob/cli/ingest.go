package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var ingestKeepGoing bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir>...",
	Short: "Store and index DICOM files",
	Long: `Store DICOM Part 10 files in the configured blob store and record them
in the metadata index. Directories are walked recursively.

Examples:
  dicomblob ingest scan.dcm
  dicomblob ingest ./study --keep-going`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestKeepGoing, "keep-going", "k", false, "Continue after files that fail to ingest")
	ingestCmd.Flags().String("store-dir", "", "Override store.dir")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	e, err := newEnv(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.Close()

	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var (
		total  int64
		stored int
		errs   []error
	)
	for _, name := range files {
		size, err := ingestFile(ctx, out, e, name)
		if err != nil {
			if !ingestKeepGoing {
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "skip %s: %v\n", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		stored++
		total += size
	}
	fmt.Fprintf(out, "Ingested %d of %d files (%s)\n", stored, len(files), humanize.IBytes(uint64(total)))
	return errors.Join(errs...)
}

func ingestFile(ctx context.Context, out io.Writer, e *env, name string) (int64, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	id, err := e.client.Ingest(ctx, f)
	if err != nil {
		return 0, err
	}
	fmt.Fprintln(out, id.String())
	return info.Size(), nil
}

// collectFiles expands directories in args to the regular files below them.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
