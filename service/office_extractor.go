package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	pathpkg "path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tieubaoca/course-assistant/types"
)

var slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type pptPresentation struct {
	SlideIDs []struct {
		RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type pptRelationships struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// SlidesExtractor reads .pptx decks, one PageText per slide in presentation order.
type SlidesExtractor struct{}

func (SlidesExtractor) Extract(ctx context.Context, path string) ([]types.PageText, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}
	defer reader.Close()

	slides := presentationSlides(reader.File)
	if len(slides) == 0 {
		slides = numberedSlides(reader.File)
	}

	pages := make([]types.PageText, 0, len(slides))
	for i, slide := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := readZipParagraphs(slide)
		if err != nil {
			text = ""
		}
		pages = append(pages, types.PageText{Text: text, PageNumber: i + 1})
	}
	return pages, nil
}

// presentationSlides resolves the deck's slide list (ppt/presentation.xml
// sldIdLst) through its relationships. It returns nil when either part is
// missing or unreadable.
func presentationSlides(files []*zip.File) []*zip.File {
	byName := make(map[string]*zip.File, len(files))
	for _, f := range files {
		byName[f.Name] = f
	}

	var pres pptPresentation
	var rels pptRelationships
	if err := readZipXML(byName["ppt/presentation.xml"], &pres); err != nil {
		return nil
	}
	if err := readZipXML(byName["ppt/_rels/presentation.xml.rels"], &rels); err != nil {
		return nil
	}
	targets := make(map[string]string, len(rels.Relationships))
	for _, r := range rels.Relationships {
		targets[r.ID] = r.Target
	}

	slides := make([]*zip.File, 0, len(pres.SlideIDs))
	for _, id := range pres.SlideIDs {
		target, ok := targets[id.RelID]
		if !ok {
			continue
		}
		// Targets are relative to ppt/ unless they start at the package root.
		name := strings.TrimPrefix(target, "/")
		if !strings.HasPrefix(target, "/") {
			name = pathpkg.Join("ppt", target)
		}
		if f, ok := byName[name]; ok {
			slides = append(slides, f)
		}
	}
	return slides
}

// numberedSlides orders ppt/slides/slideN.xml by N, for decks without a
// readable presentation part.
func numberedSlides(files []*zip.File) []*zip.File {
	type slideFile struct {
		num  int
		file *zip.File
	}
	var numbered []slideFile
	for _, f := range files {
		m := slidePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		numbered = append(numbered, slideFile{num: n, file: f})
	}
	sort.Slice(numbered, func(i, j int) bool { return numbered[i].num < numbered[j].num })

	slides := make([]*zip.File, len(numbered))
	for i, s := range numbered {
		slides[i] = s.file
	}
	return slides
}

func readZipXML(f *zip.File, v any) error {
	if f == nil {
		return os.ErrNotExist
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// WordExtractor reads the body text of a .docx document.
type WordExtractor struct{}

func (WordExtractor) Extract(_ context.Context, path string) ([]types.PageText, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		if f.Name != "word/document.xml" {
			continue
		}
		text, err := readZipParagraphs(f)
		if err != nil {
			return nil, fmt.Errorf("read word/document.xml: %w", err)
		}
		return []types.PageText{{Text: text}}, nil
	}
	return nil, errors.New("word/document.xml not found")
}

// TextExtractor reads a UTF-8 text file.
type TextExtractor struct{}

func (TextExtractor) Extract(_ context.Context, path string) ([]types.PageText, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(raw) {
		return nil, errors.New("file is not valid UTF-8")
	}
	text := strings.ReplaceAll(string(raw), "\r", "")
	return []types.PageText{{Text: text}}, nil
}

func readZipParagraphs(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return paragraphText(rc)
}

// paragraphText collects the text runs (<t>) of an OOXML part, one line per
// paragraph (<p>). It serves both the w: and a: namespaces.
func paragraphText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		lines  []string
		line   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				line.WriteByte('\t')
			case "br":
				line.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(line.String()); s != "" {
					lines = append(lines, s)
				}
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(line.String()); s != "" {
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n"), nil
}
