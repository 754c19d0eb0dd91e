package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/local/printorder/internal/config"
)

// maxOutputAttempts bounds the numbered-suffix search.
const maxOutputAttempts = 10000

// OutputPath names the finished document for orderPath: <stem>_완료.pdf in
// outDir (the order's directory when empty), then <stem>_완료_1.pdf,
// <stem>_완료_2.pdf and so on until the name is free.
func OutputPath(orderPath, outDir string) string {
	return outputPath(orderPath, outDir, config.DefaultOutputSuffix)
}

func outputPath(orderPath, outDir, suffix string) string {
	if outDir == "" {
		outDir = filepath.Dir(orderPath)
	}
	if suffix == "" {
		suffix = config.DefaultOutputSuffix
	}
	base := filepath.Base(orderPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	candidate := filepath.Join(outDir, stem+suffix+".pdf")
	for i := 1; exists(candidate) && i < maxOutputAttempts; i++ {
		candidate = filepath.Join(outDir, fmt.Sprintf("%s%s_%d.pdf", stem, suffix, i))
	}
	return candidate
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
