package view

import (
	"strings"

	"inspirations/internal/scrape/netguard"
	"inspirations/internal/scrape/twitter"
)

const labelLimit = 50

// File is a pasted or dropped file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Input is the payload of a paste or drop.
type Input struct {
	Text string
	File *File
}

// Ingestion is what an Input resolves to.
type Ingestion struct {
	Kind  UploadKind
	Label string
	URL   string
	File  *File
}

// Classify applies the ingestion policy: an image file wins, then a tweet
// link, then any other http(s) URL. Everything else is ignored.
func Classify(in Input) (Ingestion, bool) {
	if in.File != nil && strings.HasPrefix(strings.ToLower(in.File.ContentType), "image/") && len(in.File.Data) > 0 {
		return Ingestion{Kind: KindImage, Label: in.File.Name, File: in.File}, true
	}

	normalized, ok := netguard.NormalizeURL(in.Text)
	if !ok {
		return Ingestion{}, false
	}

	if twitter.IsTweetURL(normalized) {
		return Ingestion{Kind: KindTweet, Label: truncate(normalized, labelLimit), URL: normalized}, true
	}

	return Ingestion{Kind: KindURL, Label: truncate(normalized, labelLimit), URL: normalized}, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
