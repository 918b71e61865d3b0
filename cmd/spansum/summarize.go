package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	v1pb "github.com/hrygo/spansum/proto/api/v1"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Send a summarization request to a running server",
	Example: `  spansum summarize --file doc.txt --target 1:0:5 --target 2:16:19
  spansum summarize --protocol connect --addr http://localhost:28082 --file doc.txt --target 1:0:5`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		addr, _ := flags.GetString("addr")
		protocol, _ := flags.GetString("protocol")
		file, _ := flags.GetString("file")
		targetArgs, _ := flags.GetStringArray("target")
		timeout, _ := flags.GetDuration("timeout")

		req, err := buildRequest(file, targetArgs)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var resp *v1pb.Summaries
		switch protocol {
		case "grpc":
			resp, err = callGRPC(ctx, addr, req)
		case "connect":
			resp, err = callConnect(ctx, addr, req)
		default:
			return errors.Errorf("unknown protocol %q, want grpc or connect", protocol)
		}
		if err != nil {
			return err
		}

		for _, s := range resp.Summaries {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", s.TargetUUID, s.Summary)
		}
		return nil
	},
}

func init() {
	flags := summarizeCmd.Flags()
	flags.String("addr", "localhost:50051", "server address; a URL for --protocol connect")
	flags.String("protocol", "grpc", `"grpc" or "connect"`)
	flags.String("file", "-", `document file, "-" for stdin`)
	flags.StringArray("target", nil, "target as id:start:end, repeatable")
	flags.Duration("timeout", 2*time.Minute, "request timeout")
}

func buildRequest(file string, targetArgs []string) (*v1pb.SummarizationRequest, error) {
	var (
		doc []byte
		err error
	)
	if file == "-" {
		doc, err = io.ReadAll(os.Stdin)
	} else {
		doc, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read document")
	}

	req := &v1pb.SummarizationRequest{Document: string(doc)}
	for _, arg := range targetArgs {
		t, err := parseTarget(arg)
		if err != nil {
			return nil, err
		}
		req.Targets = append(req.Targets, t)
	}
	return req, nil
}

// parseTarget parses "id:start:end".
func parseTarget(arg string) (*v1pb.Target, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 3 {
		return nil, errors.Errorf("invalid target %q, want id:start:end", arg)
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid target id in %q", arg)
	}
	start, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid span start in %q", arg)
	}
	end, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid span end in %q", arg)
	}
	return &v1pb.Target{TargetUUID: id, SpanStart: uint32(start), SpanEnd: uint32(end)}, nil
}

func callGRPC(ctx context.Context, addr string, req *v1pb.SummarizationRequest) (*v1pb.Summaries, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create grpc client")
	}
	defer conn.Close()
	return v1pb.NewAbstractiveSummarizerClient(conn).AbstractiveSummarize(ctx, req)
}

func callConnect(ctx context.Context, addr string, req *v1pb.SummarizationRequest) (*v1pb.Summaries, error) {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	client := connect.NewClient[v1pb.SummarizationRequest, v1pb.Summaries](
		http.DefaultClient,
		strings.TrimSuffix(addr, "/")+v1pb.AbstractiveSummarizeProcedure,
		connect.WithCodec(v1pb.Codec{}),
	)
	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
