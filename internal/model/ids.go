package model

import (
	"encoding/base64"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	randomIDPrefix = "id-"
	pathIDPrefix   = "fs-"
)

// NewID returns a random identifier for items that are not mirrored to disk.
func NewID() string {
	return randomIDPrefix + uuid.NewString()
}

// PathID derives a stable identifier from an absolute path. The encoding is
// reversible with PathFromID.
func PathID(absPath string) string {
	clean := filepath.ToSlash(filepath.Clean(absPath))
	return pathIDPrefix + base64.RawURLEncoding.EncodeToString([]byte(clean))
}

func PathFromID(id string) (string, bool) {
	if !strings.HasPrefix(id, pathIDPrefix) {
		return "", false
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(id, pathIDPrefix))
	if err != nil {
		return "", false
	}
	return filepath.FromSlash(string(b)), true
}
