package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// ErrCorruptDocument is returned by Parse when the stored bytes are not valid JSON.
var ErrCorruptDocument = errors.New("document is not valid JSON")

// Parse decodes a stored document, tolerating shapes written by earlier versions.
//
// Rules, in order:
//   - empty input or JSON null yields an empty document
//   - a bare array is a legacy task list: {tasks: raw, events: [], clients: []}
//   - otherwise each of tasks, events, clients and clientProfiles is kept only if
//     it is an array; any other value is treated as absent
//
// Elements written with loose types (numbers for strings, "false" for false,
// at any depth) are converted. Elements that still cannot be decoded are kept
// verbatim in Undecoded and written back by Marshal, so a save never erases
// them. The result is always normalized (no nil slices).
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return EmptyDocument(), nil
	}

	var raw json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	doc := &Document{}
	switch raw[0] {
	case '[':
		doc.Tasks = decodeElements[Task](doc, SliceTasks, raw)
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
		doc.Tasks = decodeElements[Task](doc, SliceTasks, fields[SliceTasks])
		doc.Events = decodeElements[CalendarEvent](doc, SliceEvents, fields[SliceEvents])
		doc.Clients = decodeElements[Client](doc, SliceClients, fields[SliceClients])
		doc.ClientProfiles = decodeElements[ClientProfile](doc, SliceClientProfiles, fields[SliceClientProfiles])
	}

	return Normalize(doc), nil
}

// Normalize returns doc with every slice non-nil, including each task's history
// and each profile's tags. A nil doc yields an empty document. Normalize never
// modifies doc; when nothing needs fixing doc itself is returned.
func Normalize(doc *Document) *Document {
	if doc == nil {
		return EmptyDocument()
	}
	if isNormalized(doc) {
		return doc
	}

	out := *doc
	if out.Tasks == nil {
		out.Tasks = make([]Task, 0)
	} else {
		tasks := make([]Task, len(out.Tasks))
		for i, t := range out.Tasks {
			if t.History == nil {
				t.History = make([]HistoryEntry, 0)
			}
			tasks[i] = t
		}
		out.Tasks = tasks
	}
	if out.Events == nil {
		out.Events = make([]CalendarEvent, 0)
	}
	if out.Clients == nil {
		out.Clients = make([]Client, 0)
	}
	if out.ClientProfiles == nil {
		out.ClientProfiles = make([]ClientProfile, 0)
	} else {
		profiles := make([]ClientProfile, len(out.ClientProfiles))
		for i, p := range out.ClientProfiles {
			if p.Tags == nil {
				p.Tags = make([]string, 0)
			}
			profiles[i] = p
		}
		out.ClientProfiles = profiles
	}
	return &out
}

func isNormalized(doc *Document) bool {
	if doc.Tasks == nil || doc.Events == nil || doc.Clients == nil || doc.ClientProfiles == nil {
		return false
	}
	for _, t := range doc.Tasks {
		if t.History == nil {
			return false
		}
	}
	for _, p := range doc.ClientProfiles {
		if p.Tags == nil {
			return false
		}
	}
	return true
}

// decodeElements decodes raw as an array of T. A missing or non-array value
// yields nil. Elements that fail to decode are recorded in doc.Undecoded under
// slice.
func decodeElements[T any](doc *Document, slice string, raw json.RawMessage) []T {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil
	}

	out := make([]T, 0, len(elems))
	for _, elem := range elems {
		if v, ok := decodeElement[T](elem); ok {
			out = append(out, v)
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, elem); err != nil {
			continue
		}
		if doc.Undecoded == nil {
			doc.Undecoded = make(map[string][]json.RawMessage)
		}
		doc.Undecoded[slice] = append(doc.Undecoded[slice], json.RawMessage(compact.Bytes()))
	}
	return out
}

// decodeElement decodes one object. When strict decoding fails, the object is
// decoded again with weak typing: numbers become strings, "true" and "false"
// become booleans, and so on through nested values. Types with their own
// UnmarshalJSON get no second attempt.
func decodeElement[T any](raw json.RawMessage) (T, bool) {
	var v T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return v, false
	}
	if err := json.Unmarshal(trimmed, &v); err == nil {
		return v, true
	}
	if _, custom := any(&v).(json.Unmarshaler); custom {
		return v, false
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return v, false
	}

	var retry T
	weak, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &retry,
	})
	if err != nil {
		return v, false
	}
	if err := weak.Decode(fields); err != nil {
		return v, false
	}
	return retry, true
}
