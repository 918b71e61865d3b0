package apiv1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestCodec_WireLayout(t *testing.T) {
	req := &SummarizationRequest{
		Document: "Alice met Bob.",
		Targets:  []*Target{{TargetUUID: 300, SpanStart: 0, SpanEnd: 5}},
	}

	// target: field 1 = 300, field 3 = 5; field 2 is zero and omitted.
	var target []byte
	target = protowire.AppendTag(target, 1, protowire.VarintType)
	target = protowire.AppendVarint(target, 300)
	target = protowire.AppendTag(target, 3, protowire.VarintType)
	target = protowire.AppendVarint(target, 5)

	var want []byte
	want = protowire.AppendTag(want, 1, protowire.BytesType)
	want = protowire.AppendString(want, "Alice met Bob.")
	want = protowire.AppendTag(want, 2, protowire.BytesType)
	want = protowire.AppendBytes(want, target)

	got, err := Codec{}.Marshal(req)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	var decoded SummarizationRequest
	require.NoError(t, Codec{}.Unmarshal(want, &decoded))
	assert.Equal(t, *req, decoded)
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	b = protowire.AppendTag(b, 7, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 1)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "A person.")

	var s Summary
	require.NoError(t, Codec{}.Unmarshal(b, &s))
	assert.Equal(t, Summary{TargetUUID: 42, Summary: "A person."}, s)
}

func TestCodec_Truncated(t *testing.T) {
	full, err := Codec{}.Marshal(&Summaries{Summaries: []*Summary{{TargetUUID: 1, Summary: "x"}}})
	require.NoError(t, err)

	var out Summaries
	assert.Error(t, Codec{}.Unmarshal(full[:len(full)-1], &out))
}

func TestCodec_EmptyMessage(t *testing.T) {
	b, err := Codec{}.Marshal(&Summaries{})
	require.NoError(t, err)
	assert.Empty(t, b)

	var out Summaries
	require.NoError(t, Codec{}.Unmarshal(nil, &out))
	assert.Empty(t, out.Summaries)
}

func TestCodec_FallsBackToProto(t *testing.T) {
	b, err := Codec{}.Marshal(wrapperspb.String("hello"))
	require.NoError(t, err)

	out := &wrapperspb.StringValue{}
	require.NoError(t, Codec{}.Unmarshal(b, out))
	assert.Equal(t, "hello", out.GetValue())

	_, err = Codec{}.Marshal(struct{}{})
	assert.Error(t, err)
}

func TestJSONCodec(t *testing.T) {
	codec := NewJSONCodec("json")
	assert.Equal(t, "json", codec.Name())
	assert.Equal(t, "json", JSONCodec{}.Name())

	b, err := codec.Marshal(&Summaries{Summaries: []*Summary{{TargetUUID: 18446744073709551615, Summary: "Bob: a man."}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summaries":[{"targetUuid":"18446744073709551615","summary":"Bob: a man."}]}`, string(b))

	names := []string{}
	for _, c := range JSONCodecs() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"json", "json; charset=utf-8"}, names)
}

func TestJSONCodec_AcceptsProtoJSONForms(t *testing.T) {
	want := Target{TargetUUID: 7, SpanStart: 10, SpanEnd: 13}

	tests := []struct {
		name string
		body string
	}{
		{"camel case, quoted id", `{"targets":[{"targetUuid":"7","spanStart":10,"spanEnd":13}]}`},
		{"camel case, numeric id", `{"targets":[{"targetUuid":7,"spanStart":10,"spanEnd":13}]}`},
		{"proto names, quoted id", `{"targets":[{"target_uuid":"7","span_start":10,"span_end":13}]}`},
		{"proto names, numeric id", `{"targets":[{"target_uuid":7,"span_start":10,"span_end":13}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req SummarizationRequest
			require.NoError(t, NewJSONCodec("json").Unmarshal([]byte(tt.body), &req))
			require.Len(t, req.Targets, 1)
			assert.Equal(t, want, *req.Targets[0])
		})
	}
}

func TestJSONCodec_RejectsUnknownFields(t *testing.T) {
	var req SummarizationRequest
	err := NewJSONCodec("json").Unmarshal([]byte(`{"document":"x","tragets":[]}`), &req)
	assert.Error(t, err)
}

func TestJSONCodec_EmptyBody(t *testing.T) {
	var req SummarizationRequest
	require.NoError(t, NewJSONCodec("json").Unmarshal(nil, &req))
	assert.Empty(t, req.Targets)
}

func TestFileDescriptor(t *testing.T) {
	svc := File.Services().ByName("AbstractiveSummarizer")
	require.NotNil(t, svc)
	assert.Equal(t, ServiceName, string(svc.FullName()))

	target := File.Messages().ByName("Target")
	require.NotNil(t, target)
	assert.Equal(t, "targetUuid", target.Fields().ByNumber(1).JSONName())
}
