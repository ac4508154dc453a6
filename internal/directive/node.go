package directive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// NodeKind tags the variant a Node holds.
type NodeKind int

const (
	NodeNull NodeKind = iota
	NodeBool
	NodeNumber
	NodeString
	NodeArray
	NodeObject
)

// Member is one named field of an object node. Order is preserved.
type Member struct {
	Name  string
	Value *Node
}

// Node is a compact directive document: a tagged variant over the JSON
// value kinds. Only the field matching Kind is meaningful.
type Node struct {
	Kind    NodeKind
	Bool    bool
	Number  json.Number
	String  string
	Items   []*Node
	Members []Member
}

// ParseNode decodes a JSON document into a Node tree.
func ParseNode(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := decodeNode(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after document")
	}
	return n, nil
}

func decodeNode(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case nil:
		return &Node{Kind: NodeNull}, nil
	case bool:
		return &Node{Kind: NodeBool, Bool: v}, nil
	case json.Number:
		return &Node{Kind: NodeNumber, Number: v}, nil
	case string:
		return &Node{Kind: NodeString, String: v}, nil
	case json.Delim:
		switch v {
		case '[':
			n := &Node{Kind: NodeArray}
			for dec.More() {
				item, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				n.Items = append(n.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '{':
			n := &Node{Kind: NodeObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				name, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, not string", keyTok)
				}
				value, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				n.Members = append(n.Members, Member{Name: name, Value: value})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// Field returns the value of the named member of an object node.
func (n *Node) Field(name string) (*Node, bool) {
	if n == nil || n.Kind != NodeObject {
		return nil, false
	}
	for _, m := range n.Members {
		if m.Name == name {
			return m.Value, true
		}
	}
	return nil, false
}

// Truthy follows JSON truthiness: false, null, 0, "" and empty
// containers are false.
func (n *Node) Truthy() bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case NodeBool:
		return n.Bool
	case NodeNumber:
		f, err := n.Number.Float64()
		return err == nil && f != 0
	case NodeString:
		return n.String != ""
	case NodeArray:
		return len(n.Items) > 0
	case NodeObject:
		return len(n.Members) > 0
	default:
		return false
	}
}

// MarkerMatcher decides whether a member name or string value marks
// "richer content available".
type MarkerMatcher interface {
	IsMarkerKey(name string) bool
	HasMarkerPrefix(s string) bool
}

// FindMarker walks the tree depth-first and returns the dotted path of the
// first richer-content marker found.
func (n *Node) FindMarker(m MarkerMatcher) (string, bool) {
	return n.findMarker(m, "$")
}

func (n *Node) findMarker(m MarkerMatcher, path string) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Kind {
	case NodeString:
		if m.HasMarkerPrefix(n.String) {
			return path, true
		}
	case NodeArray:
		for i, item := range n.Items {
			if p, ok := item.findMarker(m, path+"["+strconv.Itoa(i)+"]"); ok {
				return p, true
			}
		}
	case NodeObject:
		for _, member := range n.Members {
			childPath := path + "." + member.Name
			if m.IsMarkerKey(member.Name) && member.Value.Truthy() {
				return childPath, true
			}
			if p, ok := member.Value.findMarker(m, childPath); ok {
				return p, true
			}
		}
	}
	return "", false
}

// MarshalJSON re-encodes the tree, keeping member order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	if err := n.encode(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (n *Node) encode(b *bytes.Buffer) error {
	if n == nil {
		b.WriteString("null")
		return nil
	}
	switch n.Kind {
	case NodeNull:
		b.WriteString("null")
	case NodeBool:
		b.WriteString(strconv.FormatBool(n.Bool))
	case NodeNumber:
		b.WriteString(n.Number.String())
	case NodeString:
		s, err := json.Marshal(n.String)
		if err != nil {
			return err
		}
		b.Write(s)
	case NodeArray:
		b.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := item.encode(b); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case NodeObject:
		b.WriteByte('{')
		for i, m := range n.Members {
			if i > 0 {
				b.WriteByte(',')
			}
			name, err := json.Marshal(m.Name)
			if err != nil {
				return err
			}
			b.Write(name)
			b.WriteByte(':')
			if err := m.Value.encode(b); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("unknown node kind %d", n.Kind)
	}
	return nil
}

// Pretty renders the tree as indented JSON.
func (n *Node) Pretty() string {
	raw, err := n.MarshalJSON()
	if err != nil {
		return ""
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return strings.TrimSpace(out.String())
}
