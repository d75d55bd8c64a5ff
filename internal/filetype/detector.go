package filetype

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Format identifies an image codec the pipeline can decode.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatUnknown Format = "unknown"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Format      Format
	IsImage     bool
	IsPDF       bool
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect classifies an in-memory header, typically the first few KiB of a file.
func (d *Detector) Detect(head []byte) *FileTypeInfo {
	mtype := mimetype.Detect(head)
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info)
	return info
}

// DetectFile detects the actual file type of path using magic bytes, not its name.
func (d *Detector) DetectFile(path string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info)
	log.Debug().Str("path", path).Str("mime", info.MIMEType).Msg("detected file type")
	return info, nil
}

// classify maps a MIME type onto a decodable image format.
func (d *Detector) classify(info *FileTypeInfo) {
	info.IsImage = strings.HasPrefix(info.MIMEType, "image/")
	info.IsPDF = info.MIMEType == "application/pdf"

	switch info.MIMEType {
	case "image/jpeg":
		info.Format = FormatJPEG
		info.Description = "JPEG image"
	case "image/png":
		info.Format = FormatPNG
		info.Description = "PNG image"
	case "image/gif":
		info.Format = FormatGIF
		info.Description = "GIF image"
	case "image/webp":
		info.Format = FormatWebP
		info.Description = "WebP image"
	case "image/bmp", "image/x-ms-bmp":
		info.Format = FormatBMP
		info.Description = "BMP image"
	case "image/tiff":
		info.Format = FormatTIFF
		info.Description = "TIFF image"
	default:
		info.Format = FormatUnknown
		if info.IsImage {
			info.Description = fmt.Sprintf("Unsupported image type: %s", info.MIMEType)
		} else {
			info.Description = fmt.Sprintf("Not an image: %s", info.MIMEType)
		}
		return
	}
	info.Supported = true
}
