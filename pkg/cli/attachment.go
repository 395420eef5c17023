package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/getmockd/resourcebind/pkg/cli/internal/output"
	"github.com/getmockd/resourcebind/pkg/resource"
	"github.com/getmockd/resourcebind/pkg/resources"
)

func newAttachmentCmd(a *app) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:     "attachment",
		Aliases: []string{"attachments"},
		Short:   "Work with user file attachments",
	}
	cmd.PersistentFlags().StringVar(&username, "user", "", "Owner of the attachments (default from RBIND_USERNAME or config)")

	user := func() (string, error) {
		if username != "" {
			return username, nil
		}
		if a.cfg.Username != "" {
			return a.cfg.Username, nil
		}
		return "", ErrNoUsername
	}

	cmd.AddCommand(
		newAttachmentGetCmd(a, user),
		newAttachmentCreateCmd(a, user),
		newAttachmentUpdateCmd(a, user),
	)
	return cmd
}

func newAttachmentGetCmd(a *app, user func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a user file attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			att, err := a.loadAttachment(cmd, user, args[0])
			if err != nil {
				return err
			}
			return a.printAttachment(cmd.OutOrStdout(), att)
		},
	}
}

func newAttachmentCreateCmd(a *app, user func() (string, error)) *cobra.Command {
	var caption, file string

	cmd := &cobra.Command{
		Use:   "create --file <path>",
		Short: "Upload a new user file attachment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := user()
			if err != nil {
				return err
			}
			attrs := map[string]any{"file": file}
			if caption != "" {
				attrs["caption"] = caption
			}

			list := resources.NewUserFileAttachments(username,
				resource.WithCollectionClient(a.client),
				resource.WithCollectionLogger(a.logger),
			)
			m, err := list.Create(cmd.Context(), attrs)
			if err != nil {
				return err
			}
			return a.printAttachment(cmd.OutOrStdout(), &resources.UserFileAttachment{Model: m})
		},
	}
	cmd.Flags().StringVar(&caption, "caption", "", "Attachment caption")
	cmd.Flags().StringVar(&file, "file", "", "Path of the file to upload")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newAttachmentUpdateCmd(a *app, user func() (string, error)) *cobra.Command {
	var caption, file string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an attachment's caption or file",
		Long: `Change an attachment's caption or file.

The file is only re-uploaded when --file is given; a caption-only update
leaves the stored file untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("caption") && file == "" {
				return ErrNothingToSave
			}
			att, err := a.loadAttachment(cmd, user, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("caption") {
				att.SetCaption(caption)
			}
			if file != "" {
				att.SetFile(file)
			}
			a.logger.Debug("saving attachment", "id", att.ID(), "changed", att.Changed())
			if err := att.Save(cmd.Context()); err != nil {
				return err
			}
			return a.printAttachment(cmd.OutOrStdout(), att)
		},
	}
	cmd.Flags().StringVar(&caption, "caption", "", "New caption")
	cmd.Flags().StringVar(&file, "file", "", "Path of a replacement file")
	return cmd
}

// loadAttachment fetches the attachment whose id is given as a CLI argument.
func (a *app) loadAttachment(cmd *cobra.Command, user func() (string, error), arg string) (*resources.UserFileAttachment, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("attachment id %q is not a number", arg)
	}
	username, err := user()
	if err != nil {
		return nil, err
	}
	att, err := resources.NewUserFileAttachment(map[string]any{"id": id},
		resource.WithClient(a.client),
		resource.WithURL(resources.UserFileAttachmentURL(username, id)),
		resource.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	if err := att.Fetch(cmd.Context()); err != nil {
		return nil, err
	}
	return att, nil
}

func (a *app) printAttachment(w io.Writer, att *resources.UserFileAttachment) error {
	if a.cfg.JSON {
		return output.JSON(w, att.Attributes())
	}
	tw := output.Table(w)
	fmt.Fprintf(tw, "ID:\t%v\n", att.ID())
	fmt.Fprintf(tw, "Caption:\t%s\n", att.Caption())
	fmt.Fprintf(tw, "Filename:\t%s\n", att.Filename())
	fmt.Fprintf(tw, "Download URL:\t%s\n", att.DownloadURL())
	return tw.Flush()
}
