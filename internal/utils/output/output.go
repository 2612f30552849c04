package output

import (
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Formats accepted by Render.
const (
	FormatJSON   = "json"
	FormatYAML   = "yaml"
	FormatNormal = "normal"
)

// Render encodes data in the requested format. The normal format expects an
// already formatted report string.
func Render(data interface{}, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		content, err := json.MarshalIndent(data, "", "  ")
		return content, errors.Wrap(err, "encode json")
	case FormatYAML:
		content, err := yaml.Marshal(data)
		return content, errors.Wrap(err, "encode yaml")
	case FormatNormal, "text", "":
		text, ok := data.(string)
		if !ok {
			return nil, errors.Errorf("normal format does not support %T", data)
		}
		return []byte(text), nil
	default:
		return nil, errors.Errorf("invalid format: %s", format)
	}
}

func WriteToFile(data interface{}, format string, filename string) error {
	content, err := Render(data, format)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, content, 0644)
}

func PrintToConsole(w io.Writer, data interface{}, format string) error {
	content, err := Render(data, format)
	if err != nil {
		return err
	}
	if len(content) > 0 && content[len(content)-1] != '\n' {
		content = append(content, '\n')
	}
	_, err = w.Write(content)
	return err
}
