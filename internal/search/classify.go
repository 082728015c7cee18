package search

import (
	"net/url"
	"strings"
)

// Kind classifies a YouTube URL by shape.
type Kind string

const (
	KindVideo    Kind = "video"
	KindPlaylist Kind = "playlist"
	KindChannel  Kind = "channel"
	KindOther    Kind = "other"
)

// youtubeHost reports whether host belongs to youtube.com, including
// subdomains (www, m, music).
func youtubeHost(host string) bool {
	host = strings.ToLower(host)
	return host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

// IsYouTubeURL reports whether raw parses to an http(s) URL on the
// youtube.com domain.
func IsYouTubeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return youtubeHost(u.Hostname())
}

// Classify maps a YouTube URL to its Kind by path/query shape.
//
// Total function: anything unparseable or unrecognized is KindOther, never
// an error. Off-domain URLs are the caller's concern (IsYouTubeURL).
func Classify(raw string) Kind {
	u, err := url.Parse(raw)
	if err != nil {
		return KindOther
	}

	path := u.Path
	switch {
	case path == "/watch" && u.Query().Get("v") != "":
		return KindVideo
	case strings.HasPrefix(path, "/shorts/") && len(path) > len("/shorts/"):
		return KindVideo
	case path == "/playlist" && u.Query().Get("list") != "":
		return KindPlaylist
	case strings.HasPrefix(path, "/@") && len(path) > len("/@"):
		return KindChannel
	case strings.HasPrefix(path, "/channel/") && len(path) > len("/channel/"):
		return KindChannel
	default:
		return KindOther
	}
}
