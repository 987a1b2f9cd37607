package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/dicomblob"
	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/retrieve"
)

// Retrieve command flags
var (
	retrieveSyntax string
	retrieveOutput string
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Retrieve instances or frames to a directory",
	Long: `Retrieve a study, series, instance, or frames and write each part to
the output directory. Instances are written as {sop}.dcm; frames as
{sop}.frame-{n}.bin.

The transfer syntax defaults to Explicit VR Little Endian. Use "*" to
keep instances as stored.

Examples:
  dicomblob retrieve study 1.2.3 -o ./out
  dicomblob retrieve instance 1.2.3 1.2.3.4 1.2.3.4.5 -t '*'
  dicomblob retrieve frames 1.2.3 1.2.3.4 1.2.3.4.5 1,2 -t 1.2.840.10008.1.2.4.50`,
}

var retrieveStudyCmd = &cobra.Command{
	Use:   "study <study>",
	Short: "Retrieve every instance of a study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRetrieve(cmd, core.Study{StudyUID: args[0]})
	},
}

var retrieveSeriesCmd = &cobra.Command{
	Use:   "series <study> <series>",
	Short: "Retrieve every instance of a series",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRetrieve(cmd, core.Series{StudyUID: args[0], SeriesUID: args[1]})
	},
}

var retrieveInstanceCmd = &cobra.Command{
	Use:   "instance <study> <series> <sop>",
	Short: "Retrieve one instance",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRetrieve(cmd, core.Instance{ID: core.NewResourceIdentifier(args[0], args[1], args[2])})
	},
}

var retrieveFramesCmd = &cobra.Command{
	Use:   "frames <study> <series> <sop> <frames>",
	Short: "Retrieve frames of one instance (1-based, comma-separated)",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		indices, err := core.ParseFrameNumbers(args[3])
		if err != nil {
			return err
		}
		return runRetrieve(cmd, core.Frames{
			ID:      core.NewResourceIdentifier(args[0], args[1], args[2]),
			Indices: indices,
		})
	},
}

func init() {
	retrieveCmd.PersistentFlags().StringVarP(&retrieveSyntax, "transfer-syntax", "t", "", `Transfer syntax UID, or "*" for as stored`)
	retrieveCmd.PersistentFlags().StringVarP(&retrieveOutput, "output", "o", ".", "Output directory")

	retrieveCmd.AddCommand(retrieveStudyCmd)
	retrieveCmd.AddCommand(retrieveSeriesCmd)
	retrieveCmd.AddCommand(retrieveInstanceCmd)
	retrieveCmd.AddCommand(retrieveFramesCmd)
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, res core.Resource) error {
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

	resp := e.client.Retrieve(ctx, dicomblob.RetrieveRequest{Resource: res, TransferSyntax: retrieveSyntax})
	defer resp.Close()
	if resp.Status != http.StatusOK {
		return resp.Err
	}

	if err := os.MkdirAll(retrieveOutput, 0o750); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	var total int64
	for i, stream := range resp.Streams {
		name := filepath.Join(retrieveOutput, filepath.Base(partFileName(resp.Parts[i])))
		n, err := writeFile(name, stream)
		if err != nil {
			return err
		}
		total += n
		fmt.Fprintf(out, "%s\t%s\n", name, humanize.IBytes(uint64(n)))
	}
	fmt.Fprintf(out, "Retrieved %d parts (%s)\n", len(resp.Streams), humanize.IBytes(uint64(total)))
	return nil
}

func partFileName(p retrieve.Part) string {
	if p.Frame >= 0 {
		return fmt.Sprintf("%s.frame-%d.bin", p.ID.SOPInstanceUID, p.Frame+1)
	}
	return p.ID.SOPInstanceUID + ".dcm"
}

// writeFile writes r to name, removing the file if the copy fails.
func writeFile(name string, r io.Reader) (int64, error) {
	f, err := os.Create(name)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(name)
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}
