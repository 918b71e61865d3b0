package apiv1

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// File is the descriptor of summarizer.proto, built in code so the proto
// runtime (protojson, dynamicpb) can work with this package's messages.
var File protoreflect.FileDescriptor

func scalar(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func repeated(name string, num int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(".spansum.api.v1." + typeName),
	}
}

func init() {
	const (
		uint64T = descriptorpb.FieldDescriptorProto_TYPE_UINT64
		uint32T = descriptorpb.FieldDescriptorProto_TYPE_UINT32
		stringT = descriptorpb.FieldDescriptorProto_TYPE_STRING
	)
	fd := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("api/v1/summarizer.proto"),
		Package: proto.String("spansum.api.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Target"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("target_uuid", 1, uint64T),
					scalar("span_start", 2, uint32T),
					scalar("span_end", 3, uint32T),
				},
			},
			{
				Name: proto.String("SummarizationRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("document", 1, stringT),
					repeated("targets", 2, "Target"),
				},
			},
			{
				Name: proto.String("Summary"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("target_uuid", 1, uint64T),
					scalar("summary", 2, stringT),
				},
			},
			{
				Name: proto.String("Summaries"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated("summaries", 1, "Summary"),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("AbstractiveSummarizer"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String("AbstractiveSummarize"),
				InputType:  proto.String(".spansum.api.v1.SummarizationRequest"),
				OutputType: proto.String(".spansum.api.v1.Summaries"),
			}},
		}},
	}

	f, err := protodesc.NewFile(fd, nil)
	if err != nil {
		panic("apiv1: invalid summarizer.proto descriptor: " + err.Error())
	}
	File = f
}

// descriptorOf returns the message descriptor matching m.
func descriptorOf(m Message) (protoreflect.MessageDescriptor, bool) {
	var name protoreflect.Name
	switch m.(type) {
	case *Target:
		name = "Target"
	case *SummarizationRequest:
		name = "SummarizationRequest"
	case *Summary:
		name = "Summary"
	case *Summaries:
		name = "Summaries"
	default:
		return nil, false
	}
	md := File.Messages().ByName(name)
	return md, md != nil
}
