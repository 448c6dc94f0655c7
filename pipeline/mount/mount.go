// Package mount 处理策略的输入/输出挂载目录：读取 config.yml 中的配置段、
// 拷贝配置文件、原子写出结果文件。
package mount

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the strategy configuration file inside the input mount.
const ConfigFile = "config.yml"

// ErrSectionMissing is returned when config.yml has no such section.
var ErrSectionMissing = errors.New("mount: config section missing")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Mounts are the participant's input and output directories.
type Mounts struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Default returns the conventional container mounts.
func Default() Mounts {
	return Mounts{Input: "/mnt/input", Output: "/mnt/output"}
}

// ConfigPath returns <input>/config.yml.
func (m Mounts) ConfigPath() string {
	return filepath.Join(m.Input, ConfigFile)
}

// LoadSection decodes one top-level section of the YAML file at path into
// into and validates it.
func LoadSection(path, section string, into any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	node, ok := doc[section]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrSectionMissing, section, path)
	}
	if err := node.Decode(into); err != nil {
		return fmt.Errorf("decode %s: %w", section, err)
	}
	if err := validate.Struct(into); err != nil {
		return fmt.Errorf("invalid %s: %w", section, err)
	}
	return nil
}

// CopyInto copies src into dir keeping its base name.
func CopyInto(src, dir string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	_, err = WriteFile(filepath.Join(dir, filepath.Base(src)), data)
	return err
}

// WriteFile writes data through a temp file and rename and returns its size.
func WriteFile(path string, data []byte) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return int64(len(data)), nil
}
