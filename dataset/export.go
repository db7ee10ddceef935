package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/teranos/handcap/record"
)

// Format names an export encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// Export writes frames to w as a list, keeping every object's key order.
func Export(w io.Writer, frames []record.Value, format Format) error {
	switch format {
	case JSON:
		return exportJSON(w, frames)
	case YAML:
		return exportYAML(w, frames)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func exportJSON(w io.Writer, frames []record.Value) error {
	if frames == nil {
		frames = []record.Value{}
	}
	compact, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("encode frames: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return fmt.Errorf("indent frames: %w", err)
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

func exportYAML(w io.Writer, frames []record.Value) error {
	top := &yaml.Node{Kind: yaml.SequenceNode}
	for _, f := range frames {
		top.Content = append(top.Content, valueNode(f))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(top); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode frames: %w", err)
	}
	return enc.Close()
}

func valueNode(v record.Value) *yaml.Node {
	switch v.Kind() {
	case record.Number:
		return floatNode(v.Float())
	case record.Array:
		n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, f := range v.Floats() {
			n.Content = append(n.Content, floatNode(f))
		}
		return n
	default:
		n := &yaml.Node{Kind: yaml.MappingNode}
		for _, field := range v.Fields() {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: field.Key},
				valueNode(field.Value))
		}
		return n
	}
}

func floatNode(f float64) *yaml.Node {
	tag := "!!float"
	if math.Abs(f) < 1e15 && f == math.Trunc(f) {
		tag = "!!int"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: strconv.FormatFloat(f, 'g', -1, 64)}
}
