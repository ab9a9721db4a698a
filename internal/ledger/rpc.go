package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultMethod is the relay method that signs and executes a move call.
const DefaultMethod = "bench_executeMoveCall"

const maxResponseBytes = 8 << 20

// RPCError is a rejection reported by the endpoint instead of effects.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *RPCError) Payload() []byte { return e.Data }

type RPCOptions struct {
	Endpoint   string
	Method     string
	Token      string
	Sender     string
	PackageID  string
	Module     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// RPCClient submits move calls to a signing relay over JSON-RPC 2.0 and
// decodes node-style transaction responses.
type RPCClient struct {
	opts   RPCOptions
	http   *http.Client
	nextID uint64
}

func NewRPCClient(opts RPCOptions) *RPCClient {
	if opts.Method == "" {
		opts.Method = DefaultMethod
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &RPCClient{opts: opts, http: hc}
}

type moveCall struct {
	Sender        string   `json:"sender"`
	Package       string   `json:"package"`
	Module        string   `json:"module"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []Arg    `json:"arguments"`
	GasBudget     string   `json:"gas_budget"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func (c *RPCClient) Submit(ctx context.Context, req *Request) (*Effects, error) {
	c.nextID++
	call := moveCall{
		Sender:        c.opts.Sender,
		Package:       c.opts.PackageID,
		Module:        c.opts.Module,
		Function:      req.Function,
		TypeArguments: req.TypeArguments,
		Arguments:     req.Arguments,
		GasBudget:     strconv.FormatUint(req.GasBudget, 10),
	}
	if call.TypeArguments == nil {
		call.TypeArguments = []string{}
	}
	if call.Arguments == nil {
		call.Arguments = []Arg{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID,
		Method:  c.opts.Method,
		Params:  []any{call},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.opts.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("posting to %s: %w", c.opts.Endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		rpcErr := &RPCError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if gjson.ValidBytes(data) {
			rpcErr.Data = data
		}
		return nil, rpcErr
	}
	return decodeResponse(data)
}

func decodeResponse(data []byte) (*Effects, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	if e := gjson.GetBytes(data, "error"); e.Exists() && e.Type != gjson.Null {
		rpcErr := &RPCError{
			Code:    int(e.Get("code").Int()),
			Message: e.Get("message").String(),
		}
		if d := e.Get("data"); d.Exists() {
			rpcErr.Data = json.RawMessage(d.Raw)
		}
		return nil, rpcErr
	}
	return decodeEffects(gjson.GetBytes(data, "result"))
}

// decodeEffects reads a transaction response: digest, effects.status,
// effects.gasUsed and effects.created.
func decodeEffects(res gjson.Result) (*Effects, error) {
	status := res.Get("effects.status.status").String()
	if status == "" {
		return nil, fmt.Errorf("response carries no effects status")
	}
	eff := &Effects{
		Digest: res.Get("digest").String(),
		Status: Status(status),
		Error:  res.Get("effects.status.error").String(),
	}
	if gas, ok := parseGas(res.Get("effects.gasUsed")); ok {
		eff.Gas = gas
	}
	res.Get("effects.created").ForEach(func(_, v gjson.Result) bool {
		id := v.Get("reference.objectId").String()
		if id != "" {
			eff.Created = append(eff.Created, Object{
				ID:     id,
				Shared: v.Get("owner.Shared").Exists(),
			})
		}
		return true
	})
	return eff, nil
}
