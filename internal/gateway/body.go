package gateway

import (
	"bytes"
	"io"
	"net/http"
)

// makeReplayable ensures the body of req can be sent a second time on retry
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(raw))
	return nil
}

// replay copies req with a fresh body for another attempt
func replay(req *http.Request) (*http.Request, error) {
	output := req.Clone(req.Context())
	if req.GetBody == nil {
		return output, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	output.Body = body
	return output, nil
}
