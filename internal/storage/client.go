package storage

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Client is a customer of the office.
//
// Only ID, Code and Name are interpreted by officedesk. All other fields
// written by the client master view (tax id, fees, contact info, checkbox
// flags) are kept in Extended and written back unchanged.
type Client struct {
	ID   string
	Code string
	Name string

	// Extended holds every JSON field other than id, code and name.
	Extended map[string]json.RawMessage
}

// MarshalJSON writes id, code and name followed by the extended fields in key order.
func (c Client) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, value []byte) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}

	for _, f := range []struct{ key, val string }{{"id", c.ID}, {"code", c.Code}, {"name", c.Name}} {
		v, err := json.Marshal(f.val)
		if err != nil {
			return nil, err
		}
		write(f.key, v)
	}

	keys := make([]string, 0, len(c.Extended))
	for k := range c.Extended {
		if k == "id" || k == "code" || k == "name" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw := c.Extended[k]
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		write(k, raw)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads id, code and name and keeps every other field in Extended.
// Numeric ids and codes are accepted and kept in their literal form.
func (c *Client) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*c = Client{}
	for k, raw := range fields {
		switch k {
		case "id":
			c.ID = scalarString(raw)
		case "code":
			c.Code = scalarString(raw)
		case "name":
			c.Name = scalarString(raw)
		default:
			if c.Extended == nil {
				c.Extended = make(map[string]json.RawMessage)
			}
			var compact bytes.Buffer
			if err := json.Compact(&compact, raw); err != nil {
				return err
			}
			c.Extended[k] = json.RawMessage(compact.Bytes())
		}
	}
	return nil
}

// Field returns the decoded extended field key as a string, or "" when absent.
func (c Client) Field(key string) string {
	raw, ok := c.Extended[key]
	if !ok {
		return ""
	}
	return scalarString(raw)
}

// SetField stores value as the extended string field key.
func (c *Client) SetField(key, value string) {
	if c.Extended == nil {
		c.Extended = make(map[string]json.RawMessage)
	}
	raw, _ := json.Marshal(value)
	c.Extended[key] = raw
}

// scalarString renders a JSON scalar as a Go string. Strings are unquoted,
// numbers and booleans keep their literal text, null and composites become "".
func scalarString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s
	case 'n', '{', '[':
		return ""
	default:
		return string(trimmed)
	}
}
