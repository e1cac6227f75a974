package cloudinary

import (
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// URLBuilder constructs delivery URLs from the service's path grammar
// (account / resource type / action / transformations / folder / identifier)
// so transformation injection cannot corrupt adjacent segments.
type URLBuilder struct {
	BaseURL   string // delivery host, e.g. https://res.cloudinary.com/
	CloudName string
	Transform string // base transformation directive, e.g. f_auto,q_auto
	Folder    string
}

const (
	resourceTypeImage = "image"
	actionUpload      = "upload"
)

// Delivery predicts the delivery URL for a file, from naming convention
// alone. The service derives the resource identifier from the uploaded
// file's base name (use_filename without unique suffixes), which is what
// makes this prediction valid; it is NOT derived from an upload response.
// If the synthesis and the service's actual URL scheme ever diverge, every
// predicted URL breaks — see DESIGN.md.
func (b URLBuilder) Delivery(fileName string) string {
	segments := []string{
		b.CloudName,
		resourceTypeImage,
		actionUpload,
		b.Transform,
		b.Folder,
		fileName,
	}

	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.TrimSuffix(b.BaseURL, "/") + "/" + strings.Join(parts, "/")
}

// IsDelivery reports whether url already points at the delivery host.
func (b URLBuilder) IsDelivery(url string) bool {
	return b.BaseURL != "" && strings.HasPrefix(url, b.BaseURL)
}

// WidthVariant returns url with a width override spliced into its
// transformation directive. When the base transform is absent from the URL
// the override becomes its own segment after the upload action.
func (b URLBuilder) WidthVariant(url string, width int) string {
	override := "w_" + strconv.Itoa(width)
	if b.Transform != "" && strings.Contains(url, "/"+b.Transform+"/") {
		return strings.Replace(url, "/"+b.Transform+"/", "/"+b.Transform+","+override+"/", 1)
	}
	return insertAfterUpload(url, override)
}

// InsertTransform rewrites a service-returned URL to apply the base
// transformation directive plus an explicit width override. Used on the
// awaited (template) path, where the real upload response is available.
func (b URLBuilder) InsertTransform(secureURL string, width int) string {
	directive := b.Transform
	if directive == "" {
		directive = "w_" + strconv.Itoa(width)
	} else {
		directive += ",w_" + strconv.Itoa(width)
	}
	return insertAfterUpload(secureURL, directive)
}

func insertAfterUpload(url, directive string) string {
	marker := "/" + actionUpload + "/"
	idx := strings.Index(url, marker)
	if idx < 0 {
		return url
	}
	return url[:idx+len(marker)] + directive + "/" + url[idx+len(marker):]
}

// FileName returns the NFC-normalized base name of a local path, the
// identifier segment of a predicted delivery URL. Normalization keeps
// predictions stable across checkouts on differently-normalizing
// filesystems (macOS NFD vs Linux NFC).
func FileName(localPath string) string {
	return norm.NFC.String(filepath.Base(localPath))
}

// PublicID returns the upload identifier for a local path: the NFC-normalized
// base name without its extension (the service appends the format itself).
func PublicID(localPath string) string {
	base := filepath.Base(localPath)
	return norm.NFC.String(strings.TrimSuffix(base, filepath.Ext(base)))
}
