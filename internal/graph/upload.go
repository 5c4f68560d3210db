package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ChunkAlignment is the required alignment for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const ChunkAlignment = 320 * 1024

// SimpleUploadLimit is the largest body the simple-upload endpoint accepts.
const SimpleUploadLimit = 250 * 1024 * 1024

type createUploadSessionRequest struct {
	Item uploadSessionItem `json:"item"`
}

type uploadSessionItem struct {
	ConflictBehavior string          `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
	FileSystemInfo   *fileSystemInfo `json:"fileSystemInfo,omitempty"`
}

// fileSystemInfo carries the local mtime so the library shows when the
// file changed on disk rather than when it arrived.
type fileSystemInfo struct {
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
}

type uploadSessionResponse struct {
	UploadURL          string `json:"uploadUrl"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// SimpleUpload PUTs the whole body in one request, replacing any file of
// the same name. It makes exactly one attempt; callers own retry because
// only they can rewind r.
func (c *Client) SimpleUpload(
	ctx context.Context, drive DriveRef, parentID, name string, r io.Reader, size int64,
) (*Item, error) {
	c.logger.Debug("simple upload",
		slog.String("parent_id", parentID),
		slog.String("name", name),
		slog.Int64("size", size),
	)

	path := fmt.Sprintf("%s/items/%s:/%s:/content",
		drive.apiPrefix(), url.PathEscape(parentID), url.PathEscape(name))

	resp, err := c.doOnce(ctx, http.MethodPut, c.baseURL+path, r, "application/octet-stream", size)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, readGraphError(resp)
	}

	return c.decodeItem(resp, "simple upload")
}

// CreateUploadSession opens a resumable upload session that replaces any
// existing file of the same name. A non-zero mtime is sent as
// fileSystemInfo.lastModifiedDateTime. One attempt only, like SimpleUpload.
func (c *Client) CreateUploadSession(
	ctx context.Context, drive DriveRef, parentID, name string, size int64, mtime time.Time,
) (*UploadSession, error) {
	c.logger.Debug("creating upload session",
		slog.String("parent_id", parentID),
		slog.String("name", name),
		slog.Int64("size", size),
	)

	item := uploadSessionItem{ConflictBehavior: "replace"}
	if !mtime.IsZero() {
		item.FileSystemInfo = &fileSystemInfo{
			LastModifiedDateTime: mtime.UTC().Format(time.RFC3339),
		}
	}

	body, err := json.Marshal(createUploadSessionRequest{Item: item})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling upload session request: %w", err)
	}

	path := fmt.Sprintf("%s/items/%s:/%s:/createUploadSession",
		drive.apiPrefix(), url.PathEscape(parentID), url.PathEscape(name))

	resp, err := c.doOnce(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body), "application/json", int64(len(body)))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, readGraphError(resp)
	}
	defer resp.Body.Close()

	var sr uploadSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("graph: decoding upload session response: %w", err)
	}

	if sr.UploadURL == "" {
		return nil, fmt.Errorf("graph: upload session response has no uploadUrl")
	}

	session := &UploadSession{UploadURL: sr.UploadURL}
	if sr.ExpirationDateTime != "" {
		if t, parseErr := time.Parse(time.RFC3339, sr.ExpirationDateTime); parseErr == nil {
			session.ExpirationTime = t
		}
	}

	return session, nil
}

// UploadChunk PUTs bytes [offset, offset+length) of a total-byte file to the
// session URL. It returns the completed Item on the final chunk (200/201)
// and nil on an accepted intermediate chunk (202). One attempt only.
// The session URL is pre-authenticated, so no Authorization header is sent.
func (c *Client) UploadChunk(
	ctx context.Context, session *UploadSession, chunk io.Reader, offset, length, total int64,
) (*Item, error) {
	c.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", total),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, chunk)
	if err != nil {
		return nil, fmt.Errorf("graph: creating chunk upload request: %w", err)
	}

	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", c.userAgent)
	req.ContentLength = length

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk at offset %d: %w", ErrTransport, offset, err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		// Drain body to reuse connection.
		_, drainErr := io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if drainErr != nil {
			return nil, fmt.Errorf("%w: draining chunk response: %w", ErrTransport, drainErr)
		}

		return nil, nil

	case http.StatusOK, http.StatusCreated:
		return c.decodeItem(resp, "final chunk")

	default:
		return nil, readGraphError(resp)
	}
}

// CancelUploadSession deletes an upload session so the partial upload is
// discarded server-side.
func (c *Client) CancelUploadSession(ctx context.Context, session *UploadSession) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, session.UploadURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("graph: creating cancel session request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: cancel upload session: %w", ErrTransport, err)
	}

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return readGraphError(resp)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	c.logger.Debug("upload session canceled")

	return nil
}
