package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// containerPath is the well-known location of container.xml in the archive.
const containerPath = "META-INF/container.xml"

// containerXML models META-INF/container.xml, which points at the package
// manifest (OPF).
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath string `xml:"full-path,attr"`
}

// locateManifest returns the archive path of the package manifest. It reads
// container.xml and takes the first rootfile's full-path; if the file or
// attribute is missing it falls back to scanning for any ".opf" entry.
// ok is false when no manifest can be found, which is not a hard failure:
// chapters may still be extracted without metadata.
func locateManifest(zr *zip.Reader) (path string, ok bool, err error) {
	if f := findEntry(zr, containerPath); f != nil {
		data, err := readEntry(f)
		if err != nil {
			return "", false, fmt.Errorf("read container.xml: %w", err)
		}
		var c containerXML
		if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
			return "", false, fmt.Errorf("parse container.xml: %w", err)
		}
		for _, rf := range c.RootFiles {
			if p := strings.TrimSpace(rf.FullPath); p != "" {
				return p, true, nil
			}
		}
	}
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f.Name, true, nil
		}
	}
	return "", false, nil
}

// findEntry looks up an entry by exact path, then case-insensitively.
func findEntry(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	lower := strings.ToLower(name)
	for _, f := range zr.File {
		if strings.ToLower(f.Name) == lower {
			return f
		}
	}
	return nil
}
