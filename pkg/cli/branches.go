package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/getmockd/resourcebind/pkg/cli/internal/output"
	"github.com/getmockd/resourcebind/pkg/resource"
	"github.com/getmockd/resourcebind/pkg/resources"
)

func newBranchesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "branches <repository-id>",
		Short: "List the branches of a repository",
		Long: `List the branches of a repository in server order.
The default branch is marked with an asterisk.`,
		Example: `  rbind branches 123
  rbind branches 123 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("repository id %q is not a number", args[0])
			}

			branches := resources.NewRepositoryBranches(
				resource.WithCollectionClient(a.client),
				resource.WithCollectionURL(resources.RepositoryBranchesURL(id)),
				resource.WithCollectionLogger(a.logger),
			)
			if err := branches.Fetch(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.cfg.JSON {
				return output.JSON(out, attributesOf(branches.Models()))
			}
			if branches.Len() > 0 && branches.Default() == nil {
				output.Warn(cmd.ErrOrStderr(), "repository %d has no default branch", id)
			}
			tw := output.Table(out)
			fmt.Fprintln(tw, "NAME\tCOMMIT\tDEFAULT")
			for _, m := range branches.Models() {
				mark := ""
				if isDefault, _ := m.Get("isDefault").(bool); isDefault {
					mark = "*"
				}
				fmt.Fprintf(tw, "%v\t%v\t%s\n", m.Get("name"), m.Get("commit"), mark)
			}
			return tw.Flush()
		},
	}
}

// attributesOf snapshots the attributes of models, in order.
func attributesOf(models []*resource.Model) []resource.Attributes {
	out := make([]resource.Attributes, len(models))
	for i, m := range models {
		out[i] = m.Attributes()
	}
	return out
}
