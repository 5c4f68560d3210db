package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

type driveResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DriveType string `json:"driveType"`
	WebURL    string `json:"webUrl"`
}

// Drive fetches the target document library. It doubles as the preflight
// check that the site and drive IDs are valid and readable with the
// current token.
func (c *Client) Drive(ctx context.Context, drive DriveRef) (*Drive, error) {
	c.logger.Debug("fetching drive",
		slog.String("site_id", drive.SiteID),
		slog.String("drive_id", drive.DriveID),
	)

	resp, err := c.Do(ctx, http.MethodGet, drive.apiPrefix(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dr driveResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("graph: decoding drive response: %w", err)
	}

	return &Drive{
		ID:        dr.ID,
		Name:      dr.Name,
		DriveType: dr.DriveType,
		WebURL:    dr.WebURL,
	}, nil
}
