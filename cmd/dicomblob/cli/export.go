package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/dicomblob"
)

// Export command flags
var (
	exportTo          string
	exportContainer   string
	exportContentType string
	exportLabel       string
	exportRefsFile    string
	exportJSON        bool
)

var exportCmd = &cobra.Command{
	Use:   "export [study/series/sop]...",
	Short: "Export instances to a destination",
	Long: `Export instances to a file, memory, or OCI registry destination.

Instances are given as study/series/sop references on the command line or,
one per line, in the file named by --refs ("-" reads stdin). Each item is
exported independently; failures are listed in the report and make the
command exit non-zero.

Destinations:
  file:///abs/dir           files below dir/<container>
  oci://host/path           one artifact per item in host/path/<container>
  oci+http://host/path      as oci:// over plain HTTP

Examples:
  dicomblob export 1.2/3.4/5.6 --to file:///tmp/out --container batch1
  dicomblob export --refs refs.txt --to oci://ghcr.io/org --container exports --content-type jpeg`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Destination connection (required)")
	exportCmd.Flags().StringVar(&exportContainer, "container", "", "Destination container")
	exportCmd.Flags().StringVar(&exportContentType, "content-type", "dicom", `Content to export: "dicom" or "jpeg"`)
	exportCmd.Flags().StringVar(&exportLabel, "label", "", "Key prefix for exported items")
	exportCmd.Flags().StringVar(&exportRefsFile, "refs", "", `File of references, one per line ("-" for stdin)`)
	exportCmd.Flags().BoolVar(&exportJSON, "json", false, "Print the report as JSON")
	exportCmd.Flags().Int("jpeg-quality", 0, "Override export.jpeg_quality")
	_ = exportCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	refs := args
	if exportRefsFile != "" {
		fromFile, err := readRefs(cmd.InOrStdin(), exportRefsFile)
		if err != nil {
			return err
		}
		refs = append(refs, fromFile...)
	}
	if len(refs) == 0 {
		return fmt.Errorf("%w: no instances to export", dicomblob.ErrInvalidRequest)
	}

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

	report, err := e.client.Export(ctx, dicomblob.ExportRequest{
		Instances:             refs,
		DestinationConnection: exportTo,
		DestinationContainer:  exportContainer,
		ContentType:           exportContentType,
		Label:                 exportLabel,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if exportJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d items failed to export", n, len(report.Outcomes))
	}
	return nil
}

func printReport(w io.Writer, report *dicomblob.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REF\tSTATUS\tSIZE\tKEY")
	for _, o := range report.Outcomes {
		if o.OK() {
			fmt.Fprintf(tw, "%s\tok\t%s\t%s\n", o.Ref, humanize.IBytes(uint64(o.Size)), o.Key)
		} else {
			fmt.Fprintf(tw, "%s\tfailed\t-\t%v\n", o.Ref, o.Err)
		}
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "Job %s: %d exported, %d failed in %s\n",
		report.JobID, report.Succeeded(), report.Failed(),
		report.Finished.Sub(report.Started).Round(time.Millisecond))
}

// readRefs reads one reference per line. Blank lines and lines starting
// with # are ignored.
func readRefs(stdin io.Reader, name string) ([]string, error) {
	r := stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var refs []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	return refs, sc.Err()
}
