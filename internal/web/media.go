package web

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// media is an uploaded file as shown back on the result page. Small images
// and videos are inlined as data URIs; anything else is listed by name only.
type media struct {
	Name    string
	Type    string
	Size    int64
	DataURI template.URL
	IsImage bool
	IsVideo bool
}

func readMedia(fh *multipart.FileHeader) (*media, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	m := &media{Name: fh.Filename, Size: fh.Size}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	m.Type = fh.Header.Get("Content-Type")
	if m.Type == "" || m.Type == "application/octet-stream" {
		m.Type = http.DetectContentType(head)
	}
	m.IsImage = strings.HasPrefix(m.Type, "image/")
	m.IsVideo = strings.HasPrefix(m.Type, "video/")

	if !(m.IsImage || m.IsVideo) || fh.Size > maxEmbeddedMediaBytes {
		return m, nil
	}
	rest, err := io.ReadAll(io.LimitReader(f, maxEmbeddedMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	data := append(head, rest...)
	m.DataURI = template.URL("data:" + m.Type + ";base64," + base64.StdEncoding.EncodeToString(data))
	return m, nil
}
