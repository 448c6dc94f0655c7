package imageload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// readLabels parses a name,label table. The first row is a header; when it
// names "name" and "label" columns those are used, otherwise the first two.
func readLabels(path, sep string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("labels file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma, _ = utf8.DecodeRuneInString(sep)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("labels file %s: %w", path, err)
	}
	nameCol, labelCol := 0, 1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			nameCol = i
		case "label":
			labelCol = i
		}
	}

	labels := make(map[string]string)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("labels file %s: %w", path, err)
		}
		if nameCol >= len(rec) || labelCol >= len(rec) {
			continue
		}
		labels[strings.TrimSpace(rec[nameCol])] = strings.TrimSpace(rec[labelCol])
	}
	return labels, nil
}
