package graph

import (
	"net/url"
	"time"
)

// DriveRef addresses one SharePoint document library.
type DriveRef struct {
	SiteID  string
	DriveID string
}

// apiPrefix is the URL path every item call is rooted at.
func (d DriveRef) apiPrefix() string {
	return "/sites/" + url.PathEscape(d.SiteID) + "/drives/" + url.PathEscape(d.DriveID)
}

func (d DriveRef) String() string {
	return d.SiteID + "/" + d.DriveID
}

// Item is a driveItem normalized from the Graph response.
type Item struct {
	ID           string
	Name         string
	ParentID     string
	Size         int64
	ETag         string
	IsFolder     bool
	QuickXorHash string // base64-encoded
	SHA256Hash   string // hex, not always present
	ModifiedAt   time.Time
	WebURL       string
}

// Drive is the subset of a drive resource printed after preflight.
type Drive struct {
	ID        string
	Name      string
	DriveType string
	WebURL    string
}

// UploadSession is a pre-authenticated upload URL returned by
// createUploadSession.
type UploadSession struct {
	UploadURL      string
	ExpirationTime time.Time
}
