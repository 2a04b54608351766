package repository

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

type FileManager struct {
	baseDir string
}

func NewFileManager(baseDir string) *FileManager {
	if baseDir == "" {
		baseDir = "."
	}
	return &FileManager{baseDir: baseDir}
}

func (fm *FileManager) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(fm.baseDir, name)
}

// ReadFile loads the whole source file into memory.
func (fm *FileManager) ReadFile(filename string) ([]byte, error) {
	data, err := os.ReadFile(fm.resolve(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// FileSink is an append-only, buffered destination file.
type FileSink struct {
	file    *os.File
	w       *bufio.Writer
	written int64
}

// CreateSink truncates or creates filename under the base directory.
func (fm *FileManager) CreateSink(filename string) (*FileSink, error) {
	path := fm.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &FileSink{
		file: file,
		w:    bufio.NewWriterSize(file, 64*1024),
	}, nil
}

func (fs *FileSink) Write(p []byte) (int, error) {
	n, err := fs.w.Write(p)
	fs.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("failed to write data: %w", err)
	}
	return n, nil
}

func (fs *FileSink) Flush() error {
	return fs.w.Flush()
}

func (fs *FileSink) Written() int64 {
	return fs.written
}

func (fs *FileSink) Name() string {
	return fs.file.Name()
}

// Close flushes pending bytes and closes the file.
func (fs *FileSink) Close() error {
	flushErr := fs.w.Flush()
	closeErr := fs.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush file: %w", flushErr)
	}
	return closeErr
}
