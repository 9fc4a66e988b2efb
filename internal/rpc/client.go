package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the Operations service of a running server
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for addr. The connection is established lazily.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Wait waits for ids (all active operations when empty)
func (c *Client) Wait(ctx context.Context, ids []string, timeout time.Duration) ([]Operation, error) {
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	in, err := structpb.NewStruct(map[string]any{
		"operation_ids": list,
		"timeout_secs":  timeout.Seconds(),
	})
	if err != nil {
		return nil, err
	}
	out, err := c.invoke(ctx, MethodWait, in)
	if err != nil {
		return nil, err
	}
	return operationsFromStruct(out), nil
}

// Status returns one operation, or all known operations when id is empty
func (c *Client) Status(ctx context.Context, id string) ([]Operation, error) {
	in, err := structpb.NewStruct(map[string]any{"operation_id": id})
	if err != nil {
		return nil, err
	}
	out, err := c.invoke(ctx, MethodStatus, in)
	if err != nil {
		return nil, err
	}
	return operationsFromStruct(out), nil
}

// Cancel cancels one operation by id
func (c *Client) Cancel(ctx context.Context, id string) ([]string, error) {
	return c.cancel(ctx, map[string]any{"operation_id": id})
}

// CancelDirectory cancels every active operation in dir
func (c *Client) CancelDirectory(ctx context.Context, dir string) ([]string, error) {
	return c.cancel(ctx, map[string]any{"working_directory": dir})
}

func (c *Client) cancel(ctx context.Context, fields map[string]any) ([]string, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out, err := c.invoke(ctx, MethodCancel, in)
	if err != nil {
		return nil, err
	}
	return stringList(out.GetFields()["cancelled"]), nil
}

// Stats returns the raw statistics map
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	out, err := c.invoke(ctx, MethodStats, &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// ShellPoolHealthy asks the health service whether the shell pools are serving
func (c *Client) ShellPoolHealthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ShellPoolService})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
