package resources

import (
	"fmt"
	"net/url"

	"github.com/getmockd/resourcebind/pkg/resource"
)

// UserFileAttachmentSchema maps the user-file-attachments API resource.
//
// The "file" attribute is the local path of a file to upload. It is sent as
// "path" only when the attachment is new or the file was changed, so a
// caption-only update never re-uploads the file.
var UserFileAttachmentSchema = resource.MustSchema(resource.Schema{
	Name:        "UserFileAttachment",
	ResourceKey: "user_file_attachment",
	WireSchema:  wireSchema("user_file_attachment.json"),
	Fields: []resource.Field{
		{Wire: "id", Kind: resource.KindInt},
		{Wire: "caption", Kind: resource.KindString},
		{Wire: "filename", Kind: resource.KindString},
		{Wire: "absolute_url", Attr: "downloadURL", Kind: resource.KindString},
	},
	Out: []resource.OutField{
		{Attr: "caption", Policy: resource.SendIfSet},
		{Attr: "file", Wire: "path", Policy: resource.SendIfNewOrChanged},
	},
})

// UserFileAttachmentsURL returns the list endpoint for a user's attachments.
func UserFileAttachmentsURL(username string) string {
	return fmt.Sprintf("/api/users/%s/user-file-attachments/", url.PathEscape(username))
}

// UserFileAttachmentURL returns the endpoint of one of a user's attachments.
func UserFileAttachmentURL(username string, id int) string {
	return fmt.Sprintf("%s%d/", UserFileAttachmentsURL(username), id)
}

// UserFileAttachment is a file uploaded by a user outside any review request.
type UserFileAttachment struct {
	*resource.Model
}

// NewUserFileAttachment creates an attachment model.
func NewUserFileAttachment(attrs map[string]any, opts ...resource.Option) (*UserFileAttachment, error) {
	m, err := resource.New(UserFileAttachmentSchema, attrs, opts...)
	if err != nil {
		return nil, err
	}
	return &UserFileAttachment{Model: m}, nil
}

// Caption returns the attachment caption.
func (a *UserFileAttachment) Caption() string {
	s, _ := a.Get("caption").(string)
	return s
}

// SetCaption sets the caption.
func (a *UserFileAttachment) SetCaption(caption string) {
	a.Set("caption", caption)
}

// Filename returns the stored file name.
func (a *UserFileAttachment) Filename() string {
	s, _ := a.Get("filename").(string)
	return s
}

// DownloadURL returns the absolute URL of the file.
func (a *UserFileAttachment) DownloadURL() string {
	s, _ := a.Get("downloadURL").(string)
	return s
}

// SetFile sets the path of the file to upload on the next save.
func (a *UserFileAttachment) SetFile(path string) {
	a.Set("file", path)
}

// UserFileAttachments is a user's attachment list. Attachments created
// through it are posted to the list endpoint.
type UserFileAttachments struct {
	*resource.Collection
}

// NewUserFileAttachments creates an empty attachment list for username.
func NewUserFileAttachments(username string, opts ...resource.CollectionOption) *UserFileAttachments {
	opts = append([]resource.CollectionOption{
		resource.WithArrayKey("user_file_attachments"),
		resource.WithCollectionURL(UserFileAttachmentsURL(username)),
	}, opts...)
	return &UserFileAttachments{Collection: resource.NewCollection(UserFileAttachmentSchema, opts...)}
}

// Attachment wraps the member at index i.
func (l *UserFileAttachments) Attachment(i int) (*UserFileAttachment, error) {
	m, err := l.At(i)
	if err != nil {
		return nil, err
	}
	return &UserFileAttachment{Model: m}, nil
}
