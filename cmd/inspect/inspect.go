// Package inspect implements the inspect command.
package inspect

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/sensorrec/internal/archive"
	"github.com/tphakala/sensorrec/internal/chunkfile"
)

// Output formats
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// Report is the summary of one chunk file.
type Report struct {
	Name              string `yaml:"name"`
	chunkfile.Summary `yaml:",inline"`
	Error             string `yaml:"error,omitempty"`
}

// Command creates the inspect command.
func Command() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect <chunk|session-dir|archive.zip>...",
		Short: "Summarize chunk files",
		Long:  "Decode chunk files, session directories or recording archives and print one line per chunk.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != FormatText && format != FormatYAML {
				return fmt.Errorf("unsupported format %q, use %s or %s", format, FormatText, FormatYAML)
			}
			var reports []Report
			for _, path := range args {
				r, err := Inspect(path)
				if err != nil {
					return err
				}
				reports = append(reports, r...)
			}
			if err := Print(cmd.OutOrStdout(), reports, format); err != nil {
				return err
			}
			if failed := Failed(reports); len(failed) > 0 {
				return fmt.Errorf("%d chunk(s) failed to decode: %s", len(failed), strings.Join(failed, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", FormatText, "Output format: text or yaml")

	return cmd
}

// Inspect decodes the chunk file, session directory or zip archive at path.
// Chunks that fail to decode are reported with their error rather than
// failing the whole listing.
func Inspect(path string) ([]Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	switch {
	case info.IsDir():
		return inspectDir(path)
	case strings.EqualFold(filepath.Ext(path), ".zip"):
		return inspectArchive(path)
	default:
		f, err := chunkfile.ReadFile(path)
		return []Report{report(filepath.Base(path), f, err)}, nil
	}
}

func inspectDir(dir string) ([]Report, error) {
	files, err := archive.Collect(dir)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, len(files))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, cf := range files {
		g.Go(func() error {
			f, err := chunkfile.ReadFile(cf.Path)
			reports[i] = report(cf.Name, f, err)
			return nil
		})
	}
	_ = g.Wait()
	return reports, nil
}

func inspectArchive(path string) ([]Report, error) {
	var reports []Report
	err := archive.Walk(path, func(name string, data []byte) error {
		f, err := chunkfile.Unmarshal(data)
		reports = append(reports, report(name, f, err))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func report(name string, f *chunkfile.File, err error) Report {
	if err != nil {
		return Report{Name: name, Error: err.Error()}
	}
	return Report{Name: name, Summary: f.Summary()}
}

// Print writes reports as an aligned table or a YAML list.
func Print(w io.Writer, reports []Report, format string) error {
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSEQ\tENTRIES\tFIRST\tLAST\tRESOLVED\tBYTES")
	for _, r := range reports {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\terror: %s\n", r.Name, r.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.Name, r.Kind, r.Seq, r.Entries, r.FirstTimestamp, r.LastTimestamp, r.Resolved, r.PayloadBytes)
	}
	return tw.Flush()
}

// Failed returns the names of reports that could not be decoded.
func Failed(reports []Report) []string {
	var names []string
	for _, r := range reports {
		if r.Error != "" {
			names = append(names, r.Name)
		}
	}
	slices.Sort(names)
	return names
}
