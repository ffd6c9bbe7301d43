// Package parser resolves command line input into the list of PDF
// documents to translate.
package parser

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// InputKind classifies a command line input argument.
type InputKind string

const (
	// KindPDF is a single PDF file.
	KindPDF InputKind = "pdf"
	// KindDirectory is a directory scanned for PDF files.
	KindDirectory InputKind = "directory"
)

// ParseInput determines what kind of input the argument is.
//
// Rules:
//   - an existing directory resolves to KindDirectory
//   - an existing file with a .pdf extension resolves to KindPDF
//   - everything else is invalid
func ParseInput(input string) (InputKind, error) {
	if strings.TrimSpace(input) == "" {
		return "", types.NewAppError(types.ErrInvalidInput, "input path cannot be empty", nil)
	}
	input = strings.TrimSpace(input)

	info, err := os.Stat(input)
	if err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrFileNotFound,
			"input path does not exist", input, err)
	}
	if info.IsDir() {
		logger.Debug("input identified as directory", logger.String("input", input))
		return KindDirectory, nil
	}
	if !strings.EqualFold(filepath.Ext(input), ".pdf") {
		return "", types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"input must be a PDF file or a directory", input, nil)
	}
	logger.Debug("input identified as PDF file", logger.String("input", input))
	return KindPDF, nil
}

// ResolveDocuments expands the input into the ordered list of PDF paths to
// process. Directories are scanned one level deep; previously produced
// -mono and -dual outputs are skipped so re-running over an output
// directory never retranslates its own results.
func ResolveDocuments(input string) ([]string, error) {
	kind, err := ParseInput(input)
	if err != nil {
		return nil, err
	}
	if kind == KindPDF {
		return []string{input}, nil
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrResource,
			"cannot read input directory", input, err)
	}
	var docs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		if isGeneratedOutput(name) {
			logger.Debug("skipping generated output", logger.String("file", name))
			continue
		}
		docs = append(docs, filepath.Join(input, name))
	}
	if len(docs) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"directory contains no PDF files", input, nil)
	}
	sort.Strings(docs)
	return docs, nil
}

func isGeneratedOutput(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.HasSuffix(stem, "-mono") || strings.HasSuffix(stem, "-dual")
}
