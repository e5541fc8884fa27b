package venue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
)

type httpCaller struct {
	client *http.Client
	base   string
	venue  Kind
}

// do sends one request and returns the raw reply. Statuses of 400 and above
// come back as errors carrying the venue's body.
func (h httpCaller) do(ctx context.Context, method, path string, body []byte, hdr map[string]string) (Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, reader)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s %s: %w", h.venue, method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	out := Response{Status: resp.StatusCode, Body: data}
	if err != nil {
		return out, fmt.Errorf("%s %s %s: read response: %w", h.venue, method, path, err)
	}
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("%s %s %s: status %d: %s", h.venue, method, path, resp.StatusCode, string(data))
	}
	return out, nil
}

func hmacSHA256(secret, payload string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// signBase64 signs timestamp+method+path+body, the prehash used by kucoin and bitget.
func signBase64(secret, timestamp, method, path string, body []byte) string {
	return base64.StdEncoding.EncodeToString(hmacSHA256(secret, timestamp+method+path+string(body)))
}

func signHex(secret, payload string) string {
	return hex.EncodeToString(hmacSHA256(secret, payload))
}
