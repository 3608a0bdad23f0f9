package moonraker

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/c360/moonraker/errors"
)

// UploadFile streams a file to a storage root over Moonraker's HTTP upload
// endpoint. The upload runs on its own goroutine; the returned channel
// yields exactly one result. The source is fully consumed but not closed.
func (c *Client) UploadFile(ctx context.Context, source io.Reader, path, root string) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := c.upload(ctx, source, path, root)
		if c.metrics != nil {
			c.metrics.transfers.WithLabelValues("upload", transferResult(err)).Inc()
		}
		done <- err
	}()
	return done
}

func (c *Client) upload(ctx context.Context, source io.Reader, path, root string) error {
	folder, filename := "", path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		folder, filename = path[:idx], path[idx+1:]
	}

	// stream the multipart body instead of buffering the whole file
	bodyReader, bodyWriter := io.Pipe()
	form := multipart.NewWriter(bodyWriter)

	go func() {
		err := func() error {
			if err := form.WriteField("root", root); err != nil {
				return err
			}
			if err := form.WriteField("path", folder); err != nil {
				return err
			}
			part, err := form.CreateFormFile("file", filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, source); err != nil {
				return err
			}
			return form.Close()
		}()
		bodyWriter.CloseWithError(err)
	}()

	url := c.HTTPURL() + "/server/files/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bodyReader)
	if err != nil {
		return errors.WrapInvalid(err, "Client", "upload", "request build")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "Client", "upload", "file upload")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.WrapTransient(
			fmt.Errorf("unexpected status %s", resp.Status),
			"Client", "upload", "file upload")
	}
	return nil
}

// DownloadFile streams a file from a storage root. The caller owns the
// returned reader and must close it.
func (c *Client) DownloadFile(ctx context.Context, path, root string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/server/files/%s/%s", c.HTTPURL(), root, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "DownloadFile", "request build")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.transfers.WithLabelValues("download", "error").Inc()
		}
		return nil, errors.WrapTransient(err, "Client", "DownloadFile", "file download")
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if c.metrics != nil {
			c.metrics.transfers.WithLabelValues("download", "error").Inc()
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.WrapInvalid(errors.ErrFileNotFound, "Client", "DownloadFile", "file download")
		}
		return nil, errors.WrapTransient(
			fmt.Errorf("unexpected status %s", resp.Status),
			"Client", "DownloadFile", "file download")
	}

	if c.metrics != nil {
		c.metrics.transfers.WithLabelValues("download", "ok").Inc()
	}
	return resp.Body, nil
}

func transferResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
