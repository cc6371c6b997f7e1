package document

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ErrNoRoot indicates a parsed document without a root element.
var ErrNoRoot = errors.New("document has no root element")

// Document wraps a parsed XML tree. The anonymization engine mutates
// text and attribute values in place through Node views; the tree's
// topology, declaration, and CDATA sections are never restructured.
type Document struct {
	path string
	tree *etree.Document
}

// Load reads and parses an XML file.
func Load(path string) (*Document, error) {
	tree := newTree()
	if err := tree.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &Document{path: path, tree: tree}, nil
}

// Parse parses an XML document from memory.
func Parse(data []byte) (*Document, error) {
	tree := newTree()
	if err := tree.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{tree: tree}, nil
}

func newTree() *etree.Document {
	tree := etree.NewDocument()
	tree.ReadSettings.PreserveCData = true
	return tree
}

// Path returns the file the document was loaded from, if any.
func (d *Document) Path() string {
	return d.path
}

// WriteFile serializes the document to the given path, preserving the
// original declaration and whitespace. The tree is never re-indented.
func (d *Document) WriteFile(path string) error {
	if err := d.tree.WriteToFile(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Bytes serializes the document to memory.
func (d *Document) Bytes() ([]byte, error) {
	return d.tree.WriteToBytes()
}

// Walk visits every element in document order. Returning an error from
// fn stops the walk and propagates the error.
func (d *Document) Walk(fn func(*Node) error) error {
	root := d.tree.Root()
	if root == nil {
		return ErrNoRoot
	}
	return walk(root, fn)
}

func walk(el *etree.Element, fn func(*Node) error) error {
	if err := fn(&Node{el: el}); err != nil {
		return err
	}
	for _, child := range el.ChildElements() {
		if err := walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// Node is a borrowed mutable view of one element. Namespace prefixes
// are ignored throughout: tags and attributes are matched by local name.
type Node struct {
	el *etree.Element
}

// Tag returns the element's local name.
func (n *Node) Tag() string {
	return n.el.Tag
}

// Path returns the element's absolute slash path, for diagnostics.
func (n *Node) Path() string {
	return n.el.GetPath()
}

// Ancestors returns the local names of the element's ancestors,
// immediate parent first.
func (n *Node) Ancestors() []string {
	var out []string
	for p := n.el.Parent(); p != nil; p = p.Parent() {
		out = append(out, p.Tag)
	}
	return out
}

// Text returns the element's own text content.
func (n *Node) Text() string {
	return n.el.Text()
}

// SetText replaces the element's text content.
func (n *Node) SetText(text string) {
	n.el.SetText(text)
}

// Attribute is one attribute of an element, keyed by local name.
type Attribute struct {
	Key   string
	Value string
}

// Attributes returns the element's attributes in document order.
func (n *Node) Attributes() []Attribute {
	out := make([]Attribute, 0, len(n.el.Attr))
	for _, a := range n.el.Attr {
		out = append(out, Attribute{Key: a.Key, Value: a.Value})
	}
	return out
}

// Attr looks up an attribute by local name.
func (n *Node) Attr(key string) (string, bool) {
	attr := n.el.SelectAttr(key)
	if attr == nil {
		return "", false
	}
	return attr.Value, true
}

// SetAttr replaces an attribute's value, keeping its position.
func (n *Node) SetAttr(key, value string) {
	if attr := n.el.SelectAttr(key); attr != nil {
		attr.Value = value
	}
}

// HasAttr reports whether the element carries the attribute.
func (n *Node) HasAttr(key string) bool {
	return n.el.SelectAttr(key) != nil
}
