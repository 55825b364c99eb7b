package backend

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"kbdash/internal/models"
)

// Documents lists the user's documents.
func (c *Client) Documents(ctx context.Context) ([]models.Document, error) {
	docs, err := run[[]models.Document](ctx, c, c.fetch, request{
		method: http.MethodGet, path: "/documents", auth: authRequired, description: "document list",
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// Status returns the system status snapshot. The token is sent when present.
func (c *Client) Status(ctx context.Context) (models.SystemStatus, error) {
	return run[models.SystemStatus](ctx, c, c.fetch, request{
		method: http.MethodGet, path: "/status", auth: authOptional, description: "status",
	})
}

// Upload streams one file to /upload as multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (models.UploadResult, error) {
	body := func() (io.Reader, string) {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			part, err := mw.CreateFormFile("file", filepath.Base(filename))
			if err != nil {
				_ = pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(part, content); err != nil {
				_ = pw.CloseWithError(err)
				return
			}
			_ = pw.CloseWithError(mw.Close())
		}()
		return pr, mw.FormDataContentType()
	}
	return run[models.UploadResult](ctx, c, c.upload, request{
		method:      http.MethodPost,
		path:        "/upload",
		auth:        authRequired,
		rawBody:     body,
		description: "upload of " + filepath.Base(filename),
	})
}

// DeleteDocument removes a document by id.
func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	return exec(ctx, c, c.mutation, request{
		method: http.MethodDelete, path: fmt.Sprintf("/documents/%d", id), auth: authRequired, description: "document delete",
	})
}
