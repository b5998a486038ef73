package uploads

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/uploader"
)

// Upload supports both single and multiple file uploads.
//
// Batch mode is selected by the files[] field, multiple=true or more than one
// file part, and always answers 200 with one result per file, in order.
func (h *Handler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.fail(c, uploader.ErrNoFiles)
		return
	}

	var (
		files []*multipart.FileHeader
		batch = boolParam(c, "multiple", false)
	)
	// Preferred: "files[]", then "files"
	for _, field := range []string{"files[]", "files"} {
		if fs, found := form.File[field]; found && len(fs) > 0 {
			files = fs
			batch = true
			break
		}
	}
	// Fallback: "file"
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) > 1 {
		batch = true
	}

	incoming := make([]uploader.Incoming, 0, len(files))
	for i, fh := range files {
		field := "file"
		if batch {
			field = fmt.Sprintf("files.%d", i)
		}
		incoming = append(incoming, uploader.Incoming{
			Field: field,
			Name:  fh.Filename,
			Open:  openPart(fh),
		})
	}

	opts := uploader.IngestOptions{SaveToDB: boolParam(c, "saveToDb", h.svc.Config().SaveToDB)}
	outcomes, err := h.svc.Ingest(c.Request.Context(), h.actor(c), incoming, opts)
	if err != nil {
		h.fail(c, err)
		return
	}

	if !batch {
		if outcomes[0].Err != nil {
			h.fail(c, outcomes[0].Err)
			return
		}
		c.JSON(http.StatusOK, outcomes[0].Result)
		return
	}

	results := make([]uploader.Result, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			results = append(results, uploader.FailureResult(o.Err))
			continue
		}
		results = append(results, *o.Result)
	}
	c.JSON(http.StatusOK, results)
}

func openPart(fh *multipart.FileHeader) func() (uploader.Content, error) {
	return func() (uploader.Content, error) {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open uploaded file: %w", err)
		}
		return f, nil
	}
}
