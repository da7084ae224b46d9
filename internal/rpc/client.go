package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LashSesh/qso/internal/benchmark"
	"github.com/LashSesh/qso/internal/tuner"
)

// #region client-struct

// Client calls a remote calibration service.
type Client struct {
	conn *grpc.ClientConn
}

// #endregion client-struct

// #region constructor

// NewClient connects to addr. Without options the connection is plaintext.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// #endregion constructor

// #region calls

func (c *Client) invoke(ctx context.Context, name string, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(name), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Propose asks the service for one tuning step.
func (c *Client) Propose(ctx context.Context) (tuner.Proposal, error) {
	out, err := c.invoke(ctx, "Propose", nil)
	if err != nil {
		return tuner.Proposal{}, fmt.Errorf("propose rpc: %w", err)
	}
	var p tuner.Proposal
	return p, fromStruct(out, &p)
}

// Status fetches the remote calibrator state.
func (c *Client) Status(ctx context.Context) (Status, error) {
	out, err := c.invoke(ctx, "Status", nil)
	if err != nil {
		return Status{}, fmt.Errorf("status rpc: %w", err)
	}
	var st Status
	return st, fromStruct(out, &st)
}

// Ingest sends rec to the service, filling in the config id and timestamp
// when they are missing. It returns the path the service wrote.
func (c *Client) Ingest(ctx context.Context, rec benchmark.Record) (string, error) {
	if rec.ConfigID == "" {
		rec.ConfigID = benchmark.ConfigIDFromMap(rec.Config)
	}
	if rec.Timestamp == nil {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	in := &structpb.Struct{}
	if err := in.UnmarshalJSON(data); err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	out, err := c.invoke(ctx, "Ingest", in)
	if err != nil {
		return "", fmt.Errorf("ingest rpc: %w", err)
	}
	return out.GetFields()["path"].GetStringValue(), nil
}

// #endregion calls
