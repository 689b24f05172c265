package gateway

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"go.uber.org/zap"
)

// HTTP routes served by Handler.
const (
	PathInput     = "/v1/input"
	PathPublicKey = "/v1/public-key"
)

// InputRequest is a body of the input registration request.
type InputRequest struct {
	Contract   util.Uint160 `json:"contract"`
	User       util.Uint160 `json:"user"`
	Ciphertext []byte       `json:"ciphertext"`
}

// InputResponse is a body of the input registration response.
type InputResponse struct {
	Handle []byte `json:"handle"`
	Proof  []byte `json:"proof"`
}

// PublicKeyResponse is a body of the public key response.
type PublicKeyResponse struct {
	Verifier  string `json:"verifier"`
	PublicKey []byte `json:"publicKey"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns HTTP handler serving gateway API.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathInput, g.handleInput)
	mux.HandleFunc(PathPublicKey, g.handlePublicKey)
	return mux
}

func (g *Gateway) handleInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req InputRequest

	err := json.NewDecoder(io.LimitReader(r.Body, 2*MaxCiphertextSize)).Decode(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	in, err := g.Register(req.Contract, req.User, req.Ciphertext)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidCiphertext) {
			status = http.StatusBadRequest
		} else {
			g.log.Error("failed to register input", zap.Error(err))
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, InputResponse{
		Handle: in.Handle.Bytes(),
		Proof:  in.Proof,
	})
}

func (g *Gateway) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, PublicKeyResponse{
		Verifier:  hex.EncodeToString(g.VerifierKey().Bytes()),
		PublicKey: g.pubKey,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Client is an HTTP client of the gateway API.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates Client for the gateway listening at the endpoint, e.g.
// http://localhost:8080.
func NewClient(endpoint string, c *http.Client) *Client {
	if c == nil {
		c = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: c}
}

// Register sends ciphertext to the gateway and returns registered input.
func (c *Client) Register(ctx context.Context, contract, user util.Uint160, ciphertext []byte) (Input, error) {
	body, err := json.Marshal(InputRequest{
		Contract:   contract,
		User:       user,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return Input{}, fmt.Errorf("encode request: %w", err)
	}

	var resp InputResponse

	err = c.do(ctx, http.MethodPost, PathInput, body, &resp)
	if err != nil {
		return Input{}, err
	}

	h, err := fhe.DecodeHandle(resp.Handle)
	if err != nil {
		return Input{}, fmt.Errorf("invalid handle in response: %w", err)
	}

	return Input{Handle: h, Proof: resp.Proof}, nil
}

// PublicKey requests network FHE public key.
func (c *Client) PublicKey(ctx context.Context) ([]byte, error) {
	var resp PublicKeyResponse

	err := c.do(ctx, http.MethodGet, PathPublicKey, nil, &resp)
	if err != nil {
		return nil, err
	}

	return resp.PublicKey, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, res any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("gateway responded with status %d: %s", resp.StatusCode, e.Error)
	}

	if err = json.NewDecoder(resp.Body).Decode(res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
