package tree

import (
	"bytes"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bobg/hlt"
)

const (
	fieldKind     protowire.Number = 1
	fieldKeys     protowire.Number = 2
	fieldValues   protowire.Number = 3
	fieldChildren protowire.Number = 4
)

// Encode serializes n in protobuf wire format.
// The encoding is deterministic,
// so logically identical nodes produce identical bytes and therefore identical refs.
func (n *Node) Encode() hlt.Blob {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(n.Kind))
	for _, k := range n.Keys {
		buf = protowire.AppendTag(buf, fieldKeys, protowire.BytesType)
		buf = protowire.AppendBytes(buf, k)
	}
	if n.Kind == MapKind {
		for _, v := range n.Values {
			buf = protowire.AppendTag(buf, fieldValues, protowire.BytesType)
			buf = protowire.AppendBytes(buf, v)
		}
	}
	for _, c := range n.Children {
		buf = protowire.AppendTag(buf, fieldChildren, protowire.BytesType)
		buf = protowire.AppendBytes(buf, c[:])
	}
	return buf
}

// Decode parses a node produced by Encode.
// Anything that is not a well-formed node is ErrCorruptNode.
// The result shares no memory with b.
func Decode(b []byte) (*Node, error) {
	var (
		n       = new(Node)
		sawKind bool
	)
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return nil, errors.Wrap(ErrCorruptNode, protowire.ParseError(m).Error())
		}
		b = b[m:]

		switch num {
		case fieldKind:
			if typ != protowire.VarintType || sawKind {
				return nil, errors.Wrap(ErrCorruptNode, "bad kind field")
			}
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, errors.Wrap(ErrCorruptNode, protowire.ParseError(m).Error())
			}
			b = b[m:]
			if Kind(v) != SetKind && Kind(v) != MapKind {
				return nil, errors.Wrapf(ErrCorruptNode, "unknown kind %d", v)
			}
			n.Kind, sawKind = Kind(v), true

		case fieldKeys, fieldValues, fieldChildren:
			if typ != protowire.BytesType {
				return nil, errors.Wrapf(ErrCorruptNode, "field %d has wire type %d", num, typ)
			}
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, errors.Wrap(ErrCorruptNode, protowire.ParseError(m).Error())
			}
			b = b[m:]
			switch num {
			case fieldKeys:
				n.Keys = append(n.Keys, append([]byte{}, v...))
			case fieldValues:
				n.Values = append(n.Values, append([]byte{}, v...))
			default:
				if len(v) != len(hlt.Zero) {
					return nil, errors.Wrapf(ErrCorruptNode, "child ref has length %d", len(v))
				}
				n.Children = append(n.Children, hlt.RefFromBytes(v))
			}

		default:
			return nil, errors.Wrapf(ErrCorruptNode, "unknown field %d", num)
		}
	}

	if !sawKind {
		return nil, errors.Wrap(ErrCorruptNode, "missing kind")
	}
	if err := n.checkShape(); err != nil {
		return nil, err
	}
	return n, nil
}

// checkShape checks the properties of n that do not depend on its place in a tree.
func (n *Node) checkShape() error {
	for i := 1; i < len(n.Keys); i++ {
		if bytes.Compare(n.Keys[i-1], n.Keys[i]) >= 0 {
			return errors.Wrapf(ErrCorruptNode, "keys out of order at position %d", i)
		}
	}
	switch n.Kind {
	case SetKind:
		if len(n.Values) != 0 {
			return errors.Wrap(ErrCorruptNode, "set node has values")
		}
	case MapKind:
		if len(n.Values) != len(n.Keys) {
			return errors.Wrapf(ErrCorruptNode, "map node has %d keys and %d values", len(n.Keys), len(n.Values))
		}
	}
	if len(n.Children) != 0 && len(n.Children) != len(n.Keys)+1 {
		return errors.Wrapf(ErrCorruptNode, "node has %d keys and %d children", len(n.Keys), len(n.Children))
	}
	return nil
}
