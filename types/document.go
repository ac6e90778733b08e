package types

import "strings"

// FileType is the format family of a corpus file.
type FileType string

const (
	FileTypePDF    FileType = "pdf"
	FileTypeSlides FileType = "slides"
	FileTypeWord   FileType = "word"
	FileTypeText   FileType = "text"
)

var extFileTypes = map[string]FileType{
	".pdf":  FileTypePDF,
	".pptx": FileTypeSlides,
	".docx": FileTypeWord,
	".txt":  FileTypeText,
}

// FileTypeFromExt maps a file extension (with leading dot, any case) to its FileType.
func FileTypeFromExt(ext string) (FileType, bool) {
	ft, ok := extFileTypes[strings.ToLower(ext)]
	return ft, ok
}

// Paged reports whether each page or slide of the format is indexed as its own unit.
func (t FileType) Paged() bool {
	return t == FileTypePDF || t == FileTypeSlides
}

// PageText is one unit of extracted text. PageNumber is 0 for formats without pages.
type PageText struct {
	Text       string
	PageNumber int
}

// RawDocument is one page, slide or whole file of extracted text.
type RawDocument struct {
	Content    string
	Filename   string
	Filepath   string
	FileType   FileType
	PageNumber int
}

// Images holds image references attached to a chunk. A nil value means the
// chunk has no image information at all, an empty non-nil slice means none were found.
type Images []string

// Chunk is a unit of text ready for embedding.
type Chunk struct {
	Content    string
	Filename   string
	Filepath   string
	FileType   FileType
	PageNumber int
	ChunkID    int
	Images     Images
}

// Metadata returns the chunk's descriptive fields without its content.
func (c Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		Filename:   c.Filename,
		Filepath:   c.Filepath,
		FileType:   c.FileType,
		PageNumber: c.PageNumber,
		ChunkID:    c.ChunkID,
		Images:     c.Images,
	}
}

// ChunkMetadata is the typed view of an indexed entry's metadata.
type ChunkMetadata struct {
	Filename   string   `json:"filename"`
	Filepath   string   `json:"filepath"`
	FileType   FileType `json:"filetype"`
	PageNumber int      `json:"page_number"`
	ChunkID    int      `json:"chunk_id"`
	Images     Images   `json:"images,omitempty"`
}

// IndexedEntry is a chunk with its embedding and collection-unique id.
type IndexedEntry struct {
	ID        string
	Chunk     Chunk
	Embedding []float32
}

// SearchResult is one nearest-neighbour hit, most similar first.
type SearchResult struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Distance float32       `json:"distance"`
}
