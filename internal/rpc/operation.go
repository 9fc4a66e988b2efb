package rpc

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AltairaLabs/async-cargo-mcp/internal/monitor"
)

// Operation is the wire view of one operation record
type Operation struct {
	ID               string
	Command          string
	Description      string
	State            string
	WorkingDirectory string
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	Success          bool
	Output           string
	Error            string
}

// FromInfo converts a monitor record
func FromInfo(op monitor.OperationInfo) Operation {
	v := Operation{
		ID:               op.ID,
		Command:          op.Command,
		Description:      op.Description,
		State:            string(op.State),
		WorkingDirectory: op.WorkingDirectory,
		StartTime:        op.StartTime,
		EndTime:          op.EndTime,
		Duration:         op.Duration(),
	}
	if op.Result != nil {
		v.Success = op.Result.Success
		v.Output = op.Result.Output
		v.Error = op.Result.Error
	}
	return v
}

// Active reports whether the operation had not finished when it was read
func (o Operation) Active() bool {
	return monitor.State(o.State).IsActive()
}

func (o Operation) toMap() map[string]any {
	m := map[string]any{
		"id":                o.ID,
		"command":           o.Command,
		"description":       o.Description,
		"state":             o.State,
		"working_directory": o.WorkingDirectory,
		"start_time":        o.StartTime.Format(time.RFC3339Nano),
		"duration_ms":       float64(o.Duration.Milliseconds()),
		"success":           o.Success,
		"output":            o.Output,
		"error":             o.Error,
	}
	if !o.EndTime.IsZero() {
		m["end_time"] = o.EndTime.Format(time.RFC3339Nano)
	}
	return m
}

func operationFromStruct(s *structpb.Struct) Operation {
	f := s.GetFields()
	o := Operation{
		ID:               f["id"].GetStringValue(),
		Command:          f["command"].GetStringValue(),
		Description:      f["description"].GetStringValue(),
		State:            f["state"].GetStringValue(),
		WorkingDirectory: f["working_directory"].GetStringValue(),
		Duration:         time.Duration(f["duration_ms"].GetNumberValue()) * time.Millisecond,
		Success:          f["success"].GetBoolValue(),
		Output:           f["output"].GetStringValue(),
		Error:            f["error"].GetStringValue(),
	}
	o.StartTime, _ = time.Parse(time.RFC3339Nano, f["start_time"].GetStringValue())
	if end := f["end_time"].GetStringValue(); end != "" {
		o.EndTime, _ = time.Parse(time.RFC3339Nano, end)
	}
	return o
}

// operationsStruct wraps records as {"operations": [...]}
func operationsStruct(ops []monitor.OperationInfo) (*structpb.Struct, error) {
	list := make([]any, len(ops))
	for i, op := range ops {
		list[i] = FromInfo(op).toMap()
	}
	out, err := structpb.NewStruct(map[string]any{"operations": list})
	if err != nil {
		return nil, fmt.Errorf("encode operations: %w", err)
	}
	return out, nil
}

func operationsFromStruct(s *structpb.Struct) []Operation {
	values := s.GetFields()["operations"].GetListValue().GetValues()
	ops := make([]Operation, 0, len(values))
	for _, v := range values {
		ops = append(ops, operationFromStruct(v.GetStructValue()))
	}
	return ops
}

// stringList reads a list of strings, ignoring non-string entries
func stringList(v *structpb.Value) []string {
	values := v.GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, item := range values {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
