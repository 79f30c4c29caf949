// Package ionode provides example async node kinds for I/O-bound node
// authors, demonstrating the graph.AsyncNode / graph.CompletionHandle
// contract end to end (spec §6 "Async nodes receive a completion handle
// they must call exactly once").
//
// These are reference implementations, not part of the engine's
// correctness surface: a node author integrating a different I/O
// pipeline copies the shape, not the package.
package ionode

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/nodeflow-dev/nodeflow/graph"
)

// FetchConfig is the configuration blob for HTTPFetch: the request
// method, target URL, and a client-side timeout applied on top of
// whatever deadline the caller's context already carries.
type FetchConfig struct {
	Method  string
	URL     string
	Timeout time.Duration
}

// FetchResult is HTTPFetch's single output: the response status code and
// body. It satisfies Go's == only incidentally (string is comparable);
// HTTPFetch marks its output cacheable because two fetches of the same
// URL under the same config are, for caching purposes, treated as the
// same computation — exactly like any other node, idempotency of the
// underlying HTTP call is the node author's responsibility (spec §4.4
// "External I/O is only allowed for async nodes and must be idempotent
// across retries").
type FetchResult struct {
	StatusCode int
	Body       string
}

// HTTPFetch is an AsyncNode with one output port "result" of type
// FetchResult. It issues a single HTTP request per invocation on a
// background goroutine and never blocks the scheduler's worker pool for
// the request's duration — grounded in the teacher's tool.HTTPTool
// (graph/tool/http.go), here reshaped from a synchronous tool.Call into
// an AsyncRun that reports through a graph.CompletionHandle instead of
// returning its result.
type HTTPFetch struct {
	reg    *graph.TypeRegistry
	typeID graph.NodeTypeId
	client *http.Client
}

// NewHTTPFetch constructs an HTTPFetch node kind bound to reg for port
// type resolution. client defaults to http.DefaultClient when nil.
func NewHTTPFetch(reg *graph.TypeRegistry, client *http.Client) *HTTPFetch {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetch{
		reg:    reg,
		typeID: reg.NodeTypeOf((*HTTPFetch)(nil)),
		client: client,
	}
}

// Descriptor implements graph.Node: no input ports (the URL travels via
// configuration, not a wired edge), one async, cacheable output.
func (h *HTTPFetch) Descriptor() graph.NodeDescriptor {
	return graph.NodeDescriptor{
		TypeID:  h.typeID,
		Inputs:  nil,
		Outputs: []graph.OutputPort{{Name: "result", Type: h.resultType(), Cacheable: true}},
		Async:   true,
	}
}

func (h *HTTPFetch) resultType() graph.ValueTypeId {
	return h.reg.TypeOf((*FetchResult)(nil))
}

// Run implements graph.Node but is never called by the scheduler for an
// Async descriptor; it exists only so HTTPFetch satisfies the Node
// interface that AsyncNode embeds.
func (h *HTTPFetch) Run(context.Context, any, graph.Inputs) (graph.Outputs, error) {
	panic("ionode: HTTPFetch.Run called on an async node; the scheduler must dispatch via AsyncRun")
}

// AsyncRun implements graph.AsyncNode: it starts the HTTP request on its
// own goroutine and returns immediately, calling done.Complete exactly
// once when the request finishes, fails, or the context is cancelled
// (spec §4.7.5 "When an async node begins, it returns a Pending value for
// each of its outputs").
func (h *HTTPFetch) AsyncRun(ctx context.Context, cfg any, _ graph.Inputs, done graph.CompletionHandle) {
	fc, _ := cfg.(FetchConfig)
	go h.fetch(ctx, fc, done)
}

func (h *HTTPFetch) fetch(ctx context.Context, fc FetchConfig, done graph.CompletionHandle) {
	reqCtx := ctx
	if fc.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, fc.Timeout)
		defer cancel()
	}

	method := fc.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(reqCtx, method, fc.URL, nil)
	if err != nil {
		done.Complete(nil, err)
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		done.Complete(nil, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		done.Complete(nil, err)
		return
	}

	result := FetchResult{StatusCode: resp.StatusCode, Body: string(body)}
	done.Complete(graph.Outputs{
		"result": graph.NewValue(h.resultType(), result, nil),
	}, nil)
}
