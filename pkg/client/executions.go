package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/dukex/botportal/pkg/models"
)

// CancelResult is the outcome of a cancel request. Killed is true when a
// running process was terminated.
type CancelResult struct {
	OK     bool `json:"ok"`
	Killed bool `json:"killed"`
}

// Executions lists every execution visible to the caller.
func (c *Client) Executions(ctx context.Context) ([]models.Execution, error) {
	var executions []models.Execution
	if err := c.doJSON(ctx, "Executions", http.MethodGet, "/api/executions", nil, &executions); err != nil {
		return nil, err
	}

	return executions, nil
}

// Execution returns one execution.
func (c *Client) Execution(ctx context.Context, executionID string) (*models.Execution, error) {
	var execution models.Execution
	if err := c.doJSON(ctx, "Execution", http.MethodGet, "/api/executions/"+id(executionID), nil, &execution); err != nil {
		return nil, err
	}

	return &execution, nil
}

// CancelExecution asks the backend to stop a queued or running execution.
func (c *Client) CancelExecution(ctx context.Context, executionID string) (*CancelResult, error) {
	var result CancelResult
	if err := c.doJSON(ctx, "CancelExecution", http.MethodPost, "/api/executions/"+id(executionID)+"/cancel", nil, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ExecutionFiles lists the artifacts of an execution by category.
func (c *Client) ExecutionFiles(ctx context.Context, executionID string) (*models.ExecutionFiles, error) {
	var files models.ExecutionFiles
	if err := c.doJSON(ctx, "ExecutionFiles", http.MethodGet, "/api/executions/"+id(executionID)+"/files", nil, &files); err != nil {
		return nil, err
	}

	return &files, nil
}

// FileText returns the content of an artifact decoded as UTF-8 text.
func (c *Client) FileText(ctx context.Context, executionID, filePath string) (string, error) {
	query := c.tokenQuery()
	query.Set("file_path", filePath)

	resp, err := c.doRaw(ctx, "FileText", "/api/executions/"+id(executionID)+"/file-text", query, "text/plain")
	if err != nil {
		return "", err
	}

	body := resp.RawBody()
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("FileText: read body: %w", err)
	}

	return string(data), nil
}

// DownloadFile copies an artifact into w and returns the bytes written.
func (c *Client) DownloadFile(ctx context.Context, executionID, filePath string, w io.Writer) (int64, error) {
	resp, err := c.doRaw(ctx, "DownloadFile", downloadPath(executionID, filePath), c.tokenQuery(), "*/*")
	if err != nil {
		return 0, err
	}

	body := resp.RawBody()
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("DownloadFile: %w", err)
	}

	return n, nil
}

// DownloadZip copies the archive of every artifact into w. It returns the
// filename suggested by the server, or "" when none was sent.
func (c *Client) DownloadZip(ctx context.Context, executionID string, w io.Writer) (string, error) {
	resp, err := c.doRaw(ctx, "DownloadZip", "/api/executions/"+id(executionID)+"/download-zip", c.tokenQuery(), "application/zip")
	if err != nil {
		return "", err
	}

	body := resp.RawBody()
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil {
		return "", fmt.Errorf("DownloadZip: %w", err)
	}

	return attachmentFilename(resp.Header().Get("Content-Disposition")), nil
}

// DownloadFileURL returns a self-authenticating URL for an artifact.
func (c *Client) DownloadFileURL(executionID, filePath string) string {
	return c.urlWithToken(downloadPath(executionID, filePath))
}

// DownloadZipURL returns a self-authenticating URL for the artifact archive.
func (c *Client) DownloadZipURL(executionID string) string {
	return c.urlWithToken("/api/executions/" + id(executionID) + "/download-zip")
}

func (c *Client) urlWithToken(path string) string {
	u := c.baseURL + path
	if query := c.tokenQuery().Encode(); query != "" {
		u += "?" + query
	}

	return u
}

func downloadPath(executionID, filePath string) string {
	return "/api/executions/" + id(executionID) + "/download/" + escapePath(filePath)
}

func attachmentFilename(disposition string) string {
	if disposition == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}

	if name := params["filename"]; name != "" {
		if unescaped, err := url.PathUnescape(name); err == nil {
			return unescaped
		}

		return name
	}

	return ""
}
