package epub

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/oyinkolade/readstack/internal/model"
)

// opfPackage models the subset of the OPF package document we extract.
// Dublin Core elements repeat in the wild (localized titles, multiple
// creators); only the first occurrence of each field is kept. That is
// documented upstream behavior, not reconciliation logic.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Metadata opfMetadata `xml:"metadata"`
}

type opfMetadata struct {
	Titles       []opfElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creators     []opfElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Descriptions []opfElement `xml:"http://purl.org/dc/elements/1.1/ description"`
	Publishers   []opfElement `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Languages    []opfElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifiers  []opfElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
}

type opfElement struct {
	Value string `xml:",chardata"`
}

// parseManifest decodes the OPF XML and returns bibliographic metadata.
// A malformed manifest is a hard error; the caller fails the whole parse.
func parseManifest(data []byte) (model.BookMetadata, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(stripBOM(data), &pkg); err != nil {
		return model.BookMetadata{}, fmt.Errorf("parse manifest: %w", err)
	}
	md := model.BookMetadata{
		Title:       firstValue(pkg.Metadata.Titles),
		Creator:     firstValue(pkg.Metadata.Creators),
		Description: firstValue(pkg.Metadata.Descriptions),
		Publisher:   firstValue(pkg.Metadata.Publishers),
		Language:    firstValue(pkg.Metadata.Languages),
		Identifier:  firstValue(pkg.Metadata.Identifiers),
	}
	return md, nil
}

func firstValue(elems []opfElement) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// stripBOM removes a leading UTF-8 BOM, which encoding/xml rejects.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
