package report

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/m-lab/linkbench/logging"
	"github.com/m-lab/linkbench/model"
)

// File is a report file. Reports written to a name ending in ".gz" are
// compressed.
type File struct {
	// Writer is where reports go.
	Writer io.Writer

	fp   *os.File
	gzip *gzip.Writer
}

// Create creates or truncates the named report file.
func Create(name string) (*File, error) {
	fp, err := os.Create(name)
	if err != nil {
		logging.Logger.WithError(err).Warn("report: cannot create file")
		return nil, err
	}
	if !strings.HasSuffix(name, ".gz") {
		return &File{Writer: fp, fp: fp}, nil
	}
	writer, err := gzip.NewWriterLevel(fp, gzip.BestSpeed)
	if err != nil {
		fp.Close()
		return nil, err
	}
	return &File{Writer: writer, fp: fp, gzip: writer}, nil
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	return f.Writer.Write(p)
}

// Close flushes and closes the file.
func (f *File) Close() error {
	if f.gzip != nil {
		if err := f.gzip.Close(); err != nil {
			f.fp.Close()
			return err
		}
	}
	return f.fp.Close()
}

// Read decodes a JSON report written by WriteJSON, compressed or not.
func Read(name string) (*model.Summary, error) {
	fp, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	var r io.Reader = fp
	if strings.HasSuffix(name, ".gz") {
		zr, err := gzip.NewReader(fp)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}
	s := &model.Summary{}
	if err := json.NewDecoder(r).Decode(s); err != nil {
		return nil, err
	}
	return s, nil
}
