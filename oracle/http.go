package oracle

import (
	"bytes"
	"context"
	"crypto/elliptic"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"go.uber.org/zap"
)

// PathDecrypt is an HTTP route of the decryption requests.
const PathDecrypt = "/v1/decrypt"

// DecryptRequest is a body of the decryption request.
type DecryptRequest struct {
	Contract  util.Uint160 `json:"contract"`
	Handle    []byte       `json:"handle"`
	PublicKey []byte       `json:"publicKey"`
	Expires   int64        `json:"expires"`
	Signature []byte       `json:"signature"`
}

// DecryptResponse is a body of the decryption response.
type DecryptResponse struct {
	RequestID uuid.UUID `json:"requestId"`
	Value     uint64    `json:"value"`
}

// Error codes of the failed decryption responses.
const (
	CodeInvalidRequest = "invalid_request"
	CodeAccessDenied   = "access_denied"
	CodeNotReady       = "not_ready"
	CodeInternal       = "internal"
)

type errorResponse struct {
	RequestID uuid.UUID `json:"requestId"`
	Code      string    `json:"code"`
	Error     string    `json:"error"`
}

// Handler returns HTTP handler serving oracle API.
func (o *Oracle) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathDecrypt, o.handleDecrypt)
	return mux
}

func (o *Oracle) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: CodeInvalidRequest, Error: "method not allowed"})
		return
	}

	var body DecryptRequest

	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	req, err := body.toRequest()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Error: err.Error()})
		return
	}

	id, v, err := o.Decrypt(req)
	if err != nil {
		status, code := http.StatusInternalServerError, CodeInternal
		switch {
		case errors.Is(err, ErrInvalidRequest):
			status, code = http.StatusBadRequest, CodeInvalidRequest
		case errors.Is(err, ErrAccessDenied):
			status, code = http.StatusForbidden, CodeAccessDenied
		case errors.Is(err, ErrNotReady):
			status, code = http.StatusNotFound, CodeNotReady
		default:
			o.log.Error("decryption failed", zap.Stringer("request", id), zap.Error(err))
		}

		writeJSON(w, status, errorResponse{RequestID: id, Code: code, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, DecryptResponse{RequestID: id, Value: v})
}

func (x DecryptRequest) toRequest() (Request, error) {
	h, err := fhe.DecodeHandle(x.Handle)
	if err != nil {
		return Request{}, err
	}

	key, err := keys.NewPublicKeyFromBytes(x.PublicKey, elliptic.P256())
	if err != nil {
		return Request{}, fmt.Errorf("decode public key: %w", err)
	}

	return Request{
		Contract:  x.Contract,
		Handle:    h,
		Key:       key,
		Expires:   x.Expires,
		Signature: x.Signature,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Client is an HTTP client of the oracle API.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates Client for the oracle listening at the endpoint.
func NewClient(endpoint string, c *http.Client) *Client {
	if c == nil {
		c = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: c}
}

// Decrypt sends decryption request. Oracle errors are mapped back to
// ErrAccessDenied, ErrNotReady and ErrInvalidRequest.
func (c *Client) Decrypt(ctx context.Context, req Request) (uint64, error) {
	body, err := json.Marshal(DecryptRequest{
		Contract:  req.Contract,
		Handle:    req.Handle.Bytes(),
		PublicKey: req.Key.Bytes(),
		Expires:   req.Expires,
		Signature: req.Signature,
	})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+PathDecrypt, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if err = json.NewDecoder(resp.Body).Decode(&e); err != nil {
			return 0, fmt.Errorf("oracle responded with status %d", resp.StatusCode)
		}

		switch e.Code {
		case CodeAccessDenied:
			err = ErrAccessDenied
		case CodeNotReady:
			err = ErrNotReady
		case CodeInvalidRequest:
			err = ErrInvalidRequest
		default:
			return 0, fmt.Errorf("oracle request %s failed: %s", e.RequestID, e.Error)
		}

		return 0, fmt.Errorf("oracle request %s: %w", e.RequestID, err)
	}

	var res DecryptResponse
	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	return res.Value, nil
}
