package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

// Recording is the upload payload: one descriptor plus one row per frame in
// capture order. The descriptor travels under the "protocol" key so stored
// uploads stay readable by the dataset tools.
type Recording struct {
	Descriptor    Descriptor  `json:"protocol"`
	FlattenedData [][]float64 `json:"flattened_data"`

	// Set by the collector when a payload is stored.
	IP             string `json:"ip,omitempty"`
	TimeReceivedNs int64  `json:"time_received_ns,omitempty"`
}

// Encode builds a Recording from frames, deriving the descriptor from the
// first one. Every frame must match it.
func Encode(frames []record.Value) (*Recording, error) {
	rec := &Recording{FlattenedData: make([][]float64, 0, len(frames))}
	for i, f := range frames {
		if i == 0 {
			d, err := CreateDescriptor(f)
			if err != nil {
				return nil, err
			}
			rec.Descriptor = d
		}
		row, err := Flatten(f, rec.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		rec.FlattenedData = append(rec.FlattenedData, row)
	}
	return rec, nil
}

// Len returns the number of frames.
func (r *Recording) Len() int { return len(r.FlattenedData) }

// Frame rebuilds frame i.
func (r *Recording) Frame(i int) (record.Value, error) {
	if i < 0 || i >= len(r.FlattenedData) {
		return record.Value{}, fmt.Errorf("frame %d out of range [0,%d)", i, len(r.FlattenedData))
	}
	return Unflatten(r.FlattenedData[i], r.Descriptor)
}

// Frames rebuilds every frame in order.
func (r *Recording) Frames() ([]record.Value, error) {
	out := make([]record.Value, 0, len(r.FlattenedData))
	for i := range r.FlattenedData {
		f, err := r.Frame(i)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// Column returns the values of the top-level leaf key, one per frame.
func (r *Recording) Column(key string) ([]float64, bool) {
	d, ok := r.Descriptor.Lookup(key)
	if !ok {
		return nil, false
	}
	idx, ok := d.IsLeaf()
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(r.FlattenedData))
	for _, row := range r.FlattenedData {
		if idx >= len(row) {
			return nil, false
		}
		out = append(out, row[idx])
	}
	return out, true
}

// Decode reads a Recording from r and checks its descriptor.
func Decode(r io.Reader) (*Recording, error) {
	var rec Recording
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, err
	}
	if rec.Descriptor.IsZero() {
		return nil, trip.Schemaf("recording has no protocol")
	}
	if err := rec.Descriptor.Check(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarshalJSON encodes d as a nested structure of integers.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d Descriptor) encode(buf *bytes.Buffer) error {
	switch d.kind {
	case leafNode:
		buf.WriteString(strconv.Itoa(d.index))
	case listNode:
		buf.WriteByte('[')
		for i, it := range d.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case recordNode:
		buf.WriteByte('{')
		for i, e := range d.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(e.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := e.Node.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		buf.WriteString("null")
	}
	return nil
}

// UnmarshalJSON decodes a descriptor keeping key order.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	out, err := decodeNode(dec, tok)
	if err != nil {
		return err
	}
	*d = out
	return nil
}

func decodeNode(dec *json.Decoder, tok json.Token) (Descriptor, error) {
	switch t := tok.(type) {
	case nil:
		return Descriptor{}, nil
	case json.Number:
		i, err := strconv.Atoi(t.String())
		if err != nil || i < 0 {
			return Descriptor{}, trip.Schemaf("descriptor leaf %s is not a non-negative integer", t)
		}
		return Leaf(i), nil
	case json.Delim:
		switch t {
		case '[':
			items := make([]Descriptor, 0)
			for dec.More() {
				next, err := dec.Token()
				if err != nil {
					return Descriptor{}, err
				}
				it, err := decodeNode(dec, next)
				if err != nil {
					return Descriptor{}, err
				}
				items = append(items, it)
			}
			if _, err := dec.Token(); err != nil {
				return Descriptor{}, err
			}
			return Descriptor{kind: listNode, items: items}, nil
		case '{':
			entries := make([]Entry, 0)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Descriptor{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Descriptor{}, fmt.Errorf("descriptor key %v is not a string", keyTok)
				}
				next, err := dec.Token()
				if err != nil {
					return Descriptor{}, err
				}
				child, err := decodeNode(dec, next)
				if err != nil {
					return Descriptor{}, fmt.Errorf("%s: %w", key, err)
				}
				entries = append(entries, Entry{Key: key, Node: child})
			}
			if _, err := dec.Token(); err != nil {
				return Descriptor{}, err
			}
			return Descriptor{kind: recordNode, entries: entries}, nil
		}
	}
	return Descriptor{}, trip.Schemaf("unexpected descriptor token %v", tok)
}
