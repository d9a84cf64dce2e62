package watcher

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	// Ext is the file extension of a raw trace dump in storage.
	Ext = ".ctf"
	// ExtCompressed is the file extension of a gzip-compressed trace dump.
	ExtCompressed = ".ctf.gz"
)

// ParseName extracts the trace name from a blob name. Dumps are stored
// as "<name>.ctf", optionally gzip-compressed as "<name>.ctf.gz".
func ParseName(blobName string) (name string, compressed bool, err error) {
	switch {
	case strings.HasSuffix(blobName, ExtCompressed):
		name = strings.TrimSuffix(blobName, ExtCompressed)
		compressed = true
	case strings.HasSuffix(blobName, Ext):
		name = strings.TrimSuffix(blobName, Ext)
	default:
		return "", false, errors.Errorf("not a trace dump: %q", blobName)
	}
	if name == "" {
		return "", false, errors.Errorf("empty trace name: %q", blobName)
	}
	if strings.HasPrefix(name, ".") {
		return "", false, errors.Errorf("hidden file: %q", blobName)
	}
	return name, compressed, nil
}
