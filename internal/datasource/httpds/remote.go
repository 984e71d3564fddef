package httpds

import (
	"context"
	"io"
	"net/url"
	"path"
)

// Remote is a source downloaded from an http:// or https:// URL.
type Remote struct {
	client *Client
	url    string
}

// NewRemote returns a Remote for rawURL.
func NewRemote(rawURL string, cfg Config) *Remote {
	return &Remote{client: NewClient(cfg), url: rawURL}
}

// Open starts the download and returns the response body.
func (r *Remote) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := r.client.Get(ctx, r.url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Name returns the last path element of the URL, e.g. "people.csv" for
// https://host/exports/people.csv?token=x.
func (r *Remote) Name() string {
	u, err := url.Parse(r.url)
	if err != nil || u.Path == "" {
		return r.url
	}
	return path.Base(u.Path)
}
