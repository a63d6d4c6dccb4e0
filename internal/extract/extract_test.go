package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:r><w:t>Ada Lovelace</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>Skills:</w:t></w:r><w:r><w:tab/><w:t>Go, SQL</w:t></w:r></w:p>` +
	`<w:p></w:p><w:p></w:p>` +
	`<w:p><w:r><w:t>Built a scoring engine</w:t></w:r></w:p>` +
	`</w:body></w:document>`

const documentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestFromBytesDocx(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		mimeType string
		fileName string
	}{
		{
			name:     "complete package",
			files:    map[string]string{"word/document.xml": documentXML, "word/_rels/document.xml.rels": documentRels},
			mimeType: mimeDOCX,
			fileName: "resume.docx",
		},
		{
			name:     "body only",
			files:    map[string]string{"word/document.xml": documentXML},
			mimeType: mimeDOCX,
			fileName: "resume.docx",
		},
		{
			name:     "zip mime normalizes",
			files:    map[string]string{"word/document.xml": documentXML, "word/_rels/document.xml.rels": documentRels},
			mimeType: "application/zip",
			fileName: "resume.bin",
		},
		{
			name:     "missing mime",
			files:    map[string]string{"word/document.xml": documentXML},
			mimeType: "",
			fileName: "",
		},
	}

	want := "Ada Lovelace\nSkills:\tGo, SQL\n\nBuilt a scoring engine"
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res, err := FromBytes(context.Background(), buildZip(t, tt.files), tt.mimeType, tt.fileName)
			if err != nil {
				t.Fatalf("FromBytes: %v", err)
			}
			if res.MimeType != mimeDOCX {
				t.Fatalf("expected docx mime, got %q", res.MimeType)
			}
			if res.Text != want {
				t.Fatalf("unexpected text %q", res.Text)
			}
		})
	}
}

func TestFromBytesPlainText(t *testing.T) {
	res, err := FromBytes(context.Background(), []byte("# Resume\r\n\r\n\r\n- Go   \r\n"), "", "resume.md")
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if res.MimeType != mimeMarkdown || res.Text != "# Resume\n\n- Go" {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = FromBytes(context.Background(), []byte("python"), "text/plain; charset=utf-8", "cv.txt")
	if err != nil || res.Text != "python" || res.MimeType != mimeText {
		t.Fatalf("unexpected result %+v %v", res, err)
	}
}

func TestFromBytesRejects(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		mimeType string
		fileName string
		want     error
	}{
		{name: "plain zip", data: buildZip(t, map[string]string{"notes.txt": "hello"}), mimeType: "application/zip", fileName: "notes.zip", want: ErrUnsupported},
		{name: "image", data: []byte{0x89, 'P', 'N', 'G'}, mimeType: "image/png", fileName: "me.png", want: ErrUnsupported},
		{name: "invalid utf-8", data: []byte{0xff, 0xfe}, mimeType: "text/plain", fileName: "cv.txt", want: ErrUnsupported},
		{name: "blank text", data: []byte(" \n\n "), mimeType: "text/plain", fileName: "cv.txt", want: ErrEmpty},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromBytes(context.Background(), tt.data, tt.mimeType, tt.fileName); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFromBytesBrokenPDF(t *testing.T) {
	_, err := FromBytes(context.Background(), []byte("%PDF-1.4 truncated"), "", "cv.pdf")
	if err == nil || errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected a parse error, got %v", err)
	}
}

func TestFromBytesCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := FromBytes(ctx, []byte("x"), "text/plain", "a.txt"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
