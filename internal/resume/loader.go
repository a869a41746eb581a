package resume

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrUnparsable is returned when a resume file cannot be turned into plain text.
var ErrUnparsable = errors.New("could not parse resume")

var supportedExtensions = []string{".pdf", ".docx", ".txt", ".text", ".md"}

// Extract returns the plain text of the resume at path. Supported containers
// are PDF (via the external pdftotext tool), DOCX and plain text.
func Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var text string
	var err error
	switch ext {
	case ".txt", ".text", ".md":
		text, err = extractPlain(path)
	case ".docx":
		text, err = extractDocx(path)
	case ".pdf":
		text, err = extractPDF(path)
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", ErrUnparsable, ext)
	}

	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnparsable, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text extracted from %s", ErrUnparsable, path)
	}

	return text, nil
}

// Discover lists resume-like files in dir, used for the interactive picker
// when no path is given on the command line.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, supported := range supportedExtensions {
			if ext == supported {
				files = append(files, entry.Name())
				break
			}
		}
	}

	return files, nil
}

func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// docx is a zip archive; the document body lives in word/document.xml.
// Paragraph boundaries (w:p elements) become newlines.
func extractDocx(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer archive.Close()

	var doc io.ReadCloser
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			doc, err = file.Open()
			if err != nil {
				return "", err
			}
			break
		}
	}
	if doc == nil {
		return "", errors.New("word/document.xml not found in archive")
	}
	defer doc.Close()

	var builder strings.Builder
	decoder := xml.NewDecoder(doc)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := token.(type) {
		case xml.CharData:
			builder.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				builder.WriteString("\n")
			}
		}
	}

	return builder.String(), nil
}

func extractPDF(path string) (string, error) {
	tool, err := exec.LookPath("pdftotext")
	if err != nil {
		return "", errors.New("pdftotext is required for PDF resumes and was not found in PATH")
	}

	var out bytes.Buffer
	cmd := exec.Command(tool, "-layout", path, "-")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext: %s", err)
	}

	return out.String(), nil
}
