package sync

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MapPath maps a local path relative to the sync root onto the remote
// folder that should hold it and the name it gets there. baseFolder is
// prepended. Separators become "/", empty and "." segments are dropped,
// ".." removes the preceding segment, and every segment is NFC-normalized
// so names decomposed by macOS match what SharePoint stores.
//
//	MapPath("docs/a.txt", "Proj/Latest") == ("Proj/Latest/docs", "a.txt")
//	MapPath("a.txt", "")                 == ("", "a.txt")
func MapPath(localRelPath, baseFolder string) (remoteFolder, remoteName string) {
	segs := cleanSegments(baseFolder + "/" + filepath.ToSlash(localRelPath))
	if len(segs) == 0 {
		return "", ""
	}

	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1]
}

// NormalizeFolder cleans a remote folder path the same way MapPath does.
func NormalizeFolder(p string) string {
	return strings.Join(cleanSegments(p), "/")
}

func cleanSegments(p string) []string {
	var out []string

	for _, seg := range strings.Split(strings.ReplaceAll(p, `\`, "/"), "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, norm.NFC.String(seg))
		}
	}

	return out
}

// joinRemote joins a remote folder and a child name.
func joinRemote(folder, name string) string {
	if folder == "" {
		return name
	}

	return folder + "/" + name
}
