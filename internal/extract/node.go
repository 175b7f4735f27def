package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

// Node is a weakly-typed JSON value. Object members keep their source order,
// which the fallback scan in Extract depends on.
type Node struct {
	kind    Kind
	text    string // string value, or the literal of a number
	truth   bool
	items   []Node
	members []Member
}

type Member struct {
	Key   string
	Value Node
}

var ErrTrailingData = errors.New("trailing data after JSON value")

func StringNode(s string) Node { return Node{kind: String, text: s} }

func NumberNode(literal string) Node { return Node{kind: Number, text: literal} }

func BoolNode(b bool) Node { return Node{kind: Bool, truth: b} }

func ArrayNode(items ...Node) Node { return Node{kind: Array, items: items} }

func ObjectNode(members ...Member) Node { return Node{kind: Object, members: members} }

func Field(key string, value Node) Member { return Member{Key: key, Value: value} }

// Parse decodes a single JSON document into an ordered tree.
func Parse(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeValue(dec)
	if err != nil {
		return Node{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Node{}, ErrTrailingData
	}
	return n, nil
}

func decodeValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return Node{}, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '[':
			items := []Node{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Node{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Node{kind: Array, items: items}, nil
		case '{':
			members := []Member{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Node{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Node{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := decodeValue(dec)
				if err != nil {
					return Node{}, err
				}
				members = append(members, Member{Key: key, Value: value})
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Node{kind: Object, members: members}, nil
		}
		return Node{}, fmt.Errorf("unexpected delimiter %q", v)
	case string:
		return StringNode(v), nil
	case json.Number:
		return NumberNode(v.String()), nil
	case bool:
		return BoolNode(v), nil
	case nil:
		return Node{}, nil
	}
	return Node{}, fmt.Errorf("unexpected token %v", tok)
}

// FromAny converts values produced by encoding/json (or built by hand) into a
// Node. Go maps carry no order, so their keys are visited sorted.
func FromAny(v any) Node {
	switch t := v.(type) {
	case nil:
		return Node{}
	case Node:
		return t
	case string:
		return StringNode(t)
	case bool:
		return BoolNode(t)
	case json.Number:
		return NumberNode(t.String())
	case float64:
		return NumberNode(strconv.FormatFloat(t, 'f', -1, 64))
	case int:
		return NumberNode(strconv.Itoa(t))
	case int64:
		return NumberNode(strconv.FormatInt(t, 10))
	case []any:
		items := make([]Node, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return ArrayNode(items...)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, len(keys))
		for i, k := range keys {
			members[i] = Member{Key: k, Value: FromAny(t[k])}
		}
		return ObjectNode(members...)
	}
	return Node{}
}

func (n Node) Kind() Kind { return n.kind }

func (n Node) IsNull() bool { return n.kind == Null }

// Str returns the value of a string node and "" for anything else.
func (n Node) Str() string {
	if n.kind == String {
		return n.text
	}
	return ""
}

// Text returns the value of a string node or the literal of a number node.
func (n Node) Text() string {
	if n.kind == String || n.kind == Number {
		return n.text
	}
	return ""
}

func (n Node) Items() []Node { return n.items }

func (n Node) Members() []Member { return n.members }

// Truthy mirrors loose truthiness: null, false, 0 and "" are false,
// every array and object is true.
func (n Node) Truthy() bool {
	switch n.kind {
	case Bool:
		return n.truth
	case String:
		return n.text != ""
	case Number:
		f, err := strconv.ParseFloat(n.text, 64)
		return err == nil && f != 0
	case Array, Object:
		return true
	}
	return false
}

// Get returns the member stored under key. Duplicate keys resolve to the
// last occurrence, as a JSON parser building a map would.
func (n Node) Get(key string) (Node, bool) {
	if n.kind != Object {
		return Node{}, false
	}
	for i := len(n.members) - 1; i >= 0; i-- {
		if n.members[i].Key == key {
			return n.members[i].Value, true
		}
	}
	return Node{}, false
}

// Lookup walks object keys and array indexes. Missing steps yield a null node.
func (n Node) Lookup(path ...string) Node {
	cur := n
	for _, step := range path {
		switch cur.kind {
		case Object:
			next, ok := cur.Get(step)
			if !ok {
				return Node{}
			}
			cur = next
		case Array:
			idx, err := strconv.Atoi(step)
			if err != nil || idx < 0 || idx >= len(cur.items) {
				return Node{}
			}
			cur = cur.items[idx]
		default:
			return Node{}
		}
	}
	return cur
}

// FirstText returns the first non-empty string or number found at paths.
func (n Node) FirstText(paths ...[]string) string {
	for _, p := range paths {
		if v := n.Lookup(p...); v.Truthy() {
			if s := v.Text(); s != "" {
				return s
			}
		}
	}
	return ""
}

func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n Node) writeJSON(buf *bytes.Buffer) error {
	switch n.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(n.truth))
	case Number:
		buf.WriteString(n.text)
	case String:
		b, err := json.Marshal(n.text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Array:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range n.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := m.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func (n Node) String() string {
	b, err := n.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}
