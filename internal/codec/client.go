package codec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
	"github.com/danielpatrickdp/brand-guardian/internal/extraction"
	"github.com/danielpatrickdp/brand-guardian/internal/media"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service exposed by the inference sidecar.
// Every method takes and returns a google.protobuf.Struct.
const ServiceName = "brandguard.inference.v1.Inference"

// ErrNotInitialized is returned by model-backed calls made before Init.
var ErrNotInitialized = errors.New("inference client not initialized")

// #region client-struct

// Client wraps the gRPC connection to the Python inference sidecar, which owns
// media download, speech recognition, OCR, embeddings and PDF page extraction.
type Client struct {
	conn           grpc.ClientConnInterface
	closer         func() error
	embeddingModel string

	initMu      sync.Mutex
	initialized bool
}

// #endregion client-struct

// #region constructor

// NewClient connects to the inference sidecar at addr.
func NewClient(addr, embeddingModel string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, closer: conn.Close, embeddingModel: embeddingModel}, nil
}

// NewClientWithConn creates a Client over an existing connection.
func NewClientWithConn(conn grpc.ClientConnInterface, embeddingModel string) *Client {
	return &Client{conn: conn, embeddingModel: embeddingModel}
}

// Close shuts down the gRPC connection if the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// #endregion constructor

// #region init

// Init loads every model the sidecar serves. Calls are serialized and only the
// first successful one reaches the sidecar, so concurrent first use never races
// model loading.
func (c *Client) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized {
		return nil
	}
	var resp struct {
		Loaded []string `json:"loaded"`
	}
	err := c.call(ctx, "LoadModels", map[string]any{
		"embedding_model": c.embeddingModel,
		"models":          []any{"transcriber", "text_recognizer", "embedder"},
	}, &resp)
	if err != nil {
		return err
	}
	c.initialized = true
	log.Printf("[CODEC] models loaded: %v", resp.Loaded)
	return nil
}

func (c *Client) ready() error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Ping checks that the sidecar answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "Ping", map[string]any{}, &struct{}{})
}

// #endregion init

// #region media

type fetchResponse struct {
	MediaID         string  `json:"media_id"`
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Fetch asks the sidecar to download ref into its media directory.
func (c *Client) Fetch(ctx context.Context, ref string) (media.Handle, error) {
	var resp fetchResponse
	if err := c.call(ctx, "FetchMedia", map[string]any{"url": ref}, &resp); err != nil {
		return media.Handle{}, auditerr.Wrap(err, auditerr.KindDownloadFailed)
	}
	if resp.Path == "" {
		return media.Handle{}, auditerr.New(auditerr.KindDownloadFailed, "sidecar returned no media path for %s", ref)
	}
	return media.Handle{
		ID:              resp.MediaID,
		Path:            resp.Path,
		SourceURL:       ref,
		DurationSeconds: resp.DurationSeconds,
	}, nil
}

// Release deletes downloaded media.
func (c *Client) Release(ctx context.Context, h media.Handle) error {
	return c.call(ctx, "ReleaseMedia", map[string]any{"media_id": h.ID, "path": h.Path}, &struct{}{})
}

// #endregion media

// #region transcribe

// Transcribe runs speech recognition over the media's audio track.
func (c *Client) Transcribe(ctx context.Context, h media.Handle, language string) ([]extraction.Segment, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var resp struct {
		Segments []extraction.Segment `json:"segments"`
	}
	if err := c.call(ctx, "Transcribe", map[string]any{"path": h.Path, "language": language}, &resp); err != nil {
		return nil, err
	}
	return resp.Segments, nil
}

// #endregion transcribe

// #region recognize-text

// RecognizeText runs OCR over frames sampled according to policy.
func (c *Client) RecognizeText(ctx context.Context, h media.Handle, policy extraction.SamplingPolicy) ([]extraction.Snippet, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var resp struct {
		Snippets []extraction.Snippet `json:"snippets"`
	}
	err := c.call(ctx, "RecognizeText", map[string]any{
		"path":             h.Path,
		"interval_seconds": policy.IntervalSeconds,
		"max_frames":       policy.MaxFrames,
		"frame_width":      policy.FrameWidth,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Snippets, nil
}

// #endregion recognize-text

// #region embed

// Embed returns the sidecar's embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := c.call(ctx, "Embed", map[string]any{"text": text, "model": c.embeddingModel}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("embed rpc: empty embedding")
	}
	return resp.Embedding, nil
}

// Identity names the embedding model so an index is never queried with another.
func (c *Client) Identity() string {
	return "codec:" + c.embeddingModel
}

// #endregion embed

// #region read-pages

// ReadPages extracts the text of every page of a PDF.
func (c *Client) ReadPages(ctx context.Context, path string) ([]string, error) {
	var resp struct {
		Pages []string `json:"pages"`
	}
	if err := c.call(ctx, "ExtractPages", map[string]any{"path": path}, &resp); err != nil {
		return nil, err
	}
	return resp.Pages, nil
}

// #endregion read-pages

// #region invoke

// call sends req as a Struct to method and decodes the Struct reply into resp.
func (c *Client) call(ctx context.Context, method string, req map[string]any, resp any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return fmt.Errorf("%s rpc: %w", method, err)
	}
	raw, err := protojson.Marshal(out)
	if err != nil {
		return fmt.Errorf("%s response: %w", method, err)
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return fmt.Errorf("%s response: %w", method, err)
	}
	return nil
}

// #endregion invoke
