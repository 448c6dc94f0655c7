package fedstats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/fedflow/pipeline/mount"
)

// Section is the config.yml section read by this strategy.
const Section = "fc_fedstats"

// Config is the fc_fedstats section.
type Config struct {
	File      string `yaml:"file" validate:"required"`
	Column    int    `yaml:"column" validate:"gte=0"`
	Normalize bool   `yaml:"normalize"`
	Sep       string `yaml:"sep" validate:"omitempty,len=1"`
}

// LoadConfig reads and validates the section from path.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := mount.LoadSection(path, Section, cfg); err != nil {
		return nil, err
	}
	if cfg.Sep == "" {
		cfg.Sep = ","
	}
	return cfg, nil
}

// readColumn parses one numeric column. A non-numeric first row is taken as
// a header; blank cells are skipped.
func readColumn(path string, column int, sep string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma, _ = utf8.DecodeRuneInString(sep)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var values []float64
	for row := 0; ; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if column >= len(rec) {
			return nil, fmt.Errorf("%s row %d: no column %d", path, row+1, column)
		}
		cell := strings.TrimSpace(rec[column])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			if row == 0 {
				continue
			}
			return nil, fmt.Errorf("%s row %d: %w", path, row+1, err)
		}
		values = append(values, v)
	}
	return values, nil
}
