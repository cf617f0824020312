package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	indentPrefix    = "    "
	entryPrefix     = "├── "
	lastEntryPrefix = "└── "
	verticalLine    = "│   "
)

// WriteDirectoryTree walks targetDir and writes a text tree listing of the
// harvested output (per-source article files) to outputFilePath.
func WriteDirectoryTree(targetDir, outputFilePath string, log *logrus.Entry) error {
	if _, err := os.Stat(targetDir); err != nil {
		return WrapErrorf(ErrFilesystem, "cannot stat output directory '%s': %v", targetDir, err)
	}

	file, err := os.Create(outputFilePath)
	if err != nil {
		return WrapErrorf(ErrFilesystem, "cannot create tree listing '%s': %v", outputFilePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	if _, err := fmt.Fprintf(writer, "Output layout for: %s\n%s\n\n%s/\n",
		targetDir, strings.Repeat("=", 19+len(targetDir)), filepath.Base(targetDir)); err != nil {
		return err
	}

	if err := writeTreeLevel(writer, targetDir, ""); err != nil {
		log.Errorf("Tree listing for '%s' failed: %v", targetDir, err)
		return err
	}
	return nil
}

// writeTreeLevel renders one directory level and recurses into subdirectories.
func writeTreeLevel(writer io.Writer, dirPath, indent string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return WrapErrorf(ErrFilesystem, "cannot read directory '%s': %v", dirPath, err)
	}

	// Directories first, then case-insensitive by name
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})

	for i, entry := range entries {
		isLast := i == len(entries)-1
		connector := entryPrefix
		if isLast {
			connector = lastEntryPrefix
		}

		if _, err := fmt.Fprintf(writer, "%s%s%s\n", indent, connector, entry.Name()); err != nil {
			return err
		}

		if entry.IsDir() {
			nextIndent := indent + verticalLine
			if isLast {
				nextIndent = indent + indentPrefix
			}
			if err := writeTreeLevel(writer, filepath.Join(dirPath, entry.Name()), nextIndent); err != nil {
				return err
			}
		}
	}
	return nil
}
