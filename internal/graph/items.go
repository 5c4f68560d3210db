package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// driveItemResponse mirrors the Graph API driveItem JSON.
// Unexported; callers use Item via toItem().
type driveItemResponse struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	ETag                 string       `json:"eTag"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	WebURL               string       `json:"webUrl"`
	ParentReference      *parentRef   `json:"parentReference"`
	File                 *fileFacet   `json:"file"`
	Folder               *folderFacet `json:"folder"`
}

type parentRef struct {
	ID string `json:"id"`
}

type fileFacet struct {
	Hashes *hashFacet `json:"hashes"`
}

type hashFacet struct {
	QuickXorHash string `json:"quickXorHash"`
	SHA256Hash   string `json:"sha256Hash"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type createFolderRequest struct {
	Name             string      `json:"name"`
	Folder           folderFacet `json:"folder"`
	ConflictBehavior string      `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:       d.ID,
		Name:     d.Name,
		Size:     d.Size,
		ETag:     d.ETag,
		IsFolder: d.Folder != nil,
		WebURL:   d.WebURL,
	}

	if d.ParentReference != nil {
		item.ParentID = d.ParentReference.ID
	}

	if d.File != nil && d.File.Hashes != nil {
		item.QuickXorHash = d.File.Hashes.QuickXorHash
		item.SHA256Hash = d.File.Hashes.SHA256Hash
	}

	if d.LastModifiedDateTime != "" {
		t, err := time.Parse(time.RFC3339, d.LastModifiedDateTime)
		if err != nil {
			logger.Debug("ignoring unparsable lastModifiedDateTime",
				slog.String("item_id", d.ID),
				slog.String("raw", d.LastModifiedDateTime),
			)
		} else {
			item.ModifiedAt = t
		}
	}

	return item
}

// decodeItem decodes a driveItem body and closes it.
func (c *Client) decodeItem(resp *http.Response, what string) (*Item, error) {
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("graph: decoding %s response: %w", what, err)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

// GetChild looks up the child called name directly under parentID.
// A missing child yields an error matching ErrNotFound.
func (c *Client) GetChild(ctx context.Context, drive DriveRef, parentID, name string) (*Item, error) {
	path := fmt.Sprintf("%s/items/%s:/%s:", drive.apiPrefix(), url.PathEscape(parentID), url.PathEscape(name))

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "child lookup")
}

// CreateFolder creates a folder under parentID. The request uses the
// "fail" conflict behavior, so an existing name surfaces as ErrConflict.
func (c *Client) CreateFolder(ctx context.Context, drive DriveRef, parentID, name string) (*Item, error) {
	c.logger.Info("creating folder",
		slog.String("parent_id", parentID),
		slog.String("name", name),
	)

	body, err := json.Marshal(createFolderRequest{
		Name:             name,
		ConflictBehavior: "fail",
	})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling create folder request: %w", err)
	}

	path := fmt.Sprintf("%s/items/%s/children", drive.apiPrefix(), url.PathEscape(parentID))

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "create folder")
}
