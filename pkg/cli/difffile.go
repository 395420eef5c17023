package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/resourcebind/pkg/cli/internal/output"
	"github.com/getmockd/resourcebind/pkg/resource"
	"github.com/getmockd/resourcebind/pkg/resources"
)

func newDiffFileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "diff-file",
		Aliases: []string{"diff-files"},
		Short:   "Work with diff viewer file entries",
	}
	cmd.AddCommand(newDiffFileParseCmd(a))
	return cmd
}

func newDiffFileParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file]",
		Short: "Map diff viewer file entries to attributes",
		Long: `Read diff viewer file entries as JSON and print their mapped attributes.

The input may be a single entry, an array of entries, or an object with a
"files" array. With no file argument (or "-") the input is read from stdin.`,
		Example: `  rbind diff-file parse files.json
  curl -s $URL | rbind diff-file parse --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			files, err := parseDiffFiles(in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.cfg.JSON {
				return output.JSON(out, files)
			}
			tw := output.Table(out)
			fmt.Fprintln(tw, "ID\tFILEDIFF\tORIGINAL\tMODIFIED\tRENAME")
			for _, attrs := range files {
				d, err := resources.NewDiffFile(attrs)
				if err != nil {
					return err
				}
				fd := "-"
				if r := d.FileDiff(); r != nil {
					fd = fmt.Sprintf("%d@r%d", r.ID, r.Revision)
				}
				fmt.Fprintf(tw, "%v\t%s\t%s\t%s\t%t\n", d.ID(), fd, d.OrigFilename(), d.ModifiedFilename(), d.IsRename())
			}
			return tw.Flush()
		},
	}
}

// parseDiffFiles decodes r and maps every diff file entry it holds.
func parseDiffFiles(r io.Reader) ([]resource.Attributes, error) {
	var raw any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("reading diff files: %w", err)
	}

	files := resource.NewCollection(resources.DiffFileSchema, resource.WithArrayKey("files"))
	switch v := raw.(type) {
	case []any:
		return files.Parse(map[string]any{"files": v})
	case map[string]any:
		if _, ok := v["files"]; ok {
			return files.Parse(v)
		}
		attrs, err := resources.DiffFileSchema.Parse(v)
		if err != nil {
			return nil, err
		}
		return []resource.Attributes{attrs}, nil
	default:
		return nil, fmt.Errorf("reading diff files: expected an object or array, got %T", raw)
	}
}
