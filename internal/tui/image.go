package tui

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxImageBytes = 5 << 20

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

type imageAttachment struct {
	Text      string
	Data      string
	MediaType string
}

// parseImageAttachment recognises "@path/to/image.png optional text". ok is
// false when the message does not start with an image reference.
func parseImageAttachment(input string) (img imageAttachment, ok bool, err error) {
	first, rest, _ := strings.Cut(strings.TrimSpace(input), " ")
	path, isRef := strings.CutPrefix(first, "@")
	if !isRef || path == "" {
		return img, false, nil
	}
	mediaType, known := imageTypes[strings.ToLower(filepath.Ext(path))]
	if !known {
		return img, false, nil
	}

	if strings.HasPrefix(path, "~/") {
		if home, homeErr := os.UserHomeDir(); homeErr == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return img, true, err
	}
	if info.Size() > maxImageBytes {
		return img, true, fmt.Errorf("%s is larger than %d bytes", filepath.Base(path), maxImageBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return img, true, err
	}
	return imageAttachment{
		Text:      strings.TrimSpace(rest),
		Data:      base64.StdEncoding.EncodeToString(data),
		MediaType: mediaType,
	}, true, nil
}
