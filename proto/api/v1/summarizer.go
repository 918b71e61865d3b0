// Package apiv1 holds the wire messages, codecs and service descriptor of
// spansum.api.v1.AbstractiveSummarizer. The encoding follows summarizer.proto.
package apiv1

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every message of this package.
type Message interface {
	// AppendWire appends the protobuf encoding of the message to b.
	AppendWire(b []byte) []byte
	// UnmarshalWire replaces the message with the decoded contents of b.
	UnmarshalWire(b []byte) error
}

type Target struct {
	TargetUUID uint64
	SpanStart  uint32
	SpanEnd    uint32
}

type SummarizationRequest struct {
	Document string
	Targets  []*Target
}

type Summary struct {
	TargetUUID uint64
	Summary    string
}

type Summaries struct {
	Summaries []*Summary
}

func (m *Target) AppendWire(b []byte) []byte {
	b = appendVarint(b, 1, m.TargetUUID)
	b = appendVarint(b, 2, uint64(m.SpanStart))
	return appendVarint(b, 3, uint64(m.SpanEnd))
}

func (m *Target) UnmarshalWire(b []byte) error {
	*m = Target{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.TargetUUID = v
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.SpanStart = uint32(v)
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.SpanEnd = uint32(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (m *SummarizationRequest) AppendWire(b []byte) []byte {
	b = appendString(b, 1, m.Document)
	for _, t := range m.Targets {
		b = appendMessage(b, 2, t)
	}
	return b
}

func (m *SummarizationRequest) UnmarshalWire(b []byte) error {
	*m = SummarizationRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Document = v
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			t := &Target{}
			if err := t.UnmarshalWire(v); err != nil {
				return 0, fmt.Errorf("targets: %w", err)
			}
			m.Targets = append(m.Targets, t)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (m *Summary) AppendWire(b []byte) []byte {
	b = appendVarint(b, 1, m.TargetUUID)
	return appendString(b, 2, m.Summary)
}

func (m *Summary) UnmarshalWire(b []byte) error {
	*m = Summary{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.TargetUUID = v
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Summary = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (m *Summaries) AppendWire(b []byte) []byte {
	for _, s := range m.Summaries {
		b = appendMessage(b, 1, s)
	}
	return b
}

func (m *Summaries) UnmarshalWire(b []byte) error {
	*m = Summaries{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			s := &Summary{}
			if err := s.UnmarshalWire(v); err != nil {
				return 0, fmt.Errorf("summaries: %w", err)
			}
			m.Summaries = append(m.Summaries, s)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// Zero values are not written, as in proto3.
func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.AppendWire(nil))
}

// consumeFields walks the fields of b. field decodes one value and returns the
// number of bytes read, or a negative protowire error code.
func consumeFields(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}
