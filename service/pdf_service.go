package service

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tieubaoca/course-assistant/logger"
	"github.com/tieubaoca/course-assistant/types"
	"go.uber.org/zap"
)

var pagesPattern = regexp.MustCompile(`Pages:\s+(\d+)`)

// PDFService extracts PDF text page by page with poppler-utils, optionally
// falling back to tesseract OCR for pages without a text layer.
type PDFService struct {
	ocrFallback  bool
	ocrLanguages string
}

func NewPDFService(ocrFallback bool) *PDFService {
	return &PDFService{
		ocrFallback:  ocrFallback,
		ocrLanguages: "chi_sim+eng",
	}
}

// Extract returns one PageText per page. A page that cannot be read yields
// empty text; only a failure to open the document is returned as an error.
func (s *PDFService) Extract(ctx context.Context, filePath string) ([]types.PageText, error) {
	totalPages, err := getNumPages(ctx, filePath)
	if err != nil {
		return nil, err
	}
	logger.Debug("extracting pdf", zap.String("file", filePath), zap.Int("pages", totalPages))

	pages := make([]types.PageText, 0, totalPages)
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := s.extractText(ctx, filePath, pageNum)
		if err != nil {
			logger.Warn("failed to extract pdf page",
				zap.String("file", filePath), zap.Int("page", pageNum), zap.Error(err))
			text = ""
		}
		pages = append(pages, types.PageText{Text: text, PageNumber: pageNum})
	}
	return pages, nil
}

func (s *PDFService) extractText(ctx context.Context, filePath string, pageNumber int) (string, error) {
	text, err := extractTextWithPdftotext(ctx, filePath, pageNumber)
	if err == nil && text != "" {
		return text, nil
	}
	if !s.ocrFallback {
		return "", err
	}
	text, err = s.extractTextWithTesseract(ctx, filePath, pageNumber)
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}
	return text, nil
}

func extractTextWithPdftotext(ctx context.Context, filePath string, pageNumber int) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext",
		"-f", strconv.Itoa(pageNumber),
		"-l", strconv.Itoa(pageNumber),
		"-enc", "UTF-8", "-nopgbrk",
		filePath, "-")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext page %d: %w", pageNumber, err)
	}
	if trimmed := strings.TrimSpace(out.String()); trimmed != "" {
		return trimmed, nil
	}
	return "", fmt.Errorf("got nothing at page %d", pageNumber)
}

// extractTextWithTesseract renders the page to PNG and runs OCR on it.
func (s *PDFService) extractTextWithTesseract(ctx context.Context, pdfPath string, pageNumber int) (string, error) {
	tempFolder, err := os.MkdirTemp("", "course-ocr-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempFolder)

	convertCmd := exec.CommandContext(ctx, "pdftoppm",
		"-f", strconv.Itoa(pageNumber),
		"-l", strconv.Itoa(pageNumber),
		"-png", pdfPath, filepath.Join(tempFolder, "page"))
	if err := convertCmd.Run(); err != nil {
		return "", fmt.Errorf("converting page %d to image: %w", pageNumber, err)
	}
	images, err := filepath.Glob(filepath.Join(tempFolder, "page-*.png"))
	if err != nil || len(images) == 0 {
		return "", fmt.Errorf("no rendered image for page %d", pageNumber)
	}

	ocrCmd := exec.CommandContext(ctx, "tesseract",
		images[0], "stdout",
		"-l", s.ocrLanguages,
		"--oem", "3",
		"--psm", "3",
	)
	var ocrOut bytes.Buffer
	ocrCmd.Stdout = &ocrOut
	if err := ocrCmd.Run(); err != nil {
		return "", fmt.Errorf("failed to run tesseract: %w", err)
	}
	if trimmed := strings.TrimSpace(ocrOut.String()); trimmed != "" {
		return trimmed, nil
	}
	return "", fmt.Errorf("got nothing at page %d", pageNumber)
}

// getNumPages uses pdfinfo to get the total number of pages in a PDF file.
func getNumPages(ctx context.Context, pdfPath string) (int, error) {
	cmd := exec.CommandContext(ctx, "pdfinfo", pdfPath)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("error running pdfinfo: %w", err)
	}

	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		if matches := pagesPattern.FindStringSubmatch(scanner.Text()); len(matches) == 2 {
			return strconv.Atoi(matches[1])
		}
	}
	return 0, fmt.Errorf("unable to determine page count from pdfinfo")
}

var cleanReplacer = strings.NewReplacer(
	"\u0000", "",
	"\ufffd", "",
	"\u001b", "",
	"\r", "",
	"\f", "\n",
	"\uf8ff", "",
)

// cleanText strips control and artifact characters left by extractors.
func cleanText(text string) string {
	return strings.TrimSpace(cleanReplacer.Replace(text))
}
