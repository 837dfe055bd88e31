package zip

import (
	"archive/zip"
	"bytes"
)

type Asset struct {
	Filename string
	Data     []byte
}

// ArchiveAssets bundles the assets into an in-memory zip. Entry headers
// carry no timestamps, so the same inputs always produce the same bytes.
func ArchiveAssets(assets []Asset) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, asset := range assets {
		hdr := &zip.FileHeader{Name: asset.Filename, Method: zip.Deflate}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			continue
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
