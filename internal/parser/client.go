package parser

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Client carries the HTTP plumbing shared by every marketplace parser.
type Client struct {
	HTTP   *http.Client
	Logger logger
}

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

func newRequest(ctx context.Context, method string, url string, body io.Reader) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	setDefaultRequestHeader(r)
	return r, nil
}

func setDefaultRequestHeader(r *http.Request) {
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.Header.Set("Accept", "application/json")
}

func (c Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

// do sends req and reads at most limit bytes of the response body.
func (c Client) do(req *http.Request, limit int64) (*http.Response, []byte, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error doing request %s %s", req.Method, req.URL)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && c.Logger != nil {
			c.Logger.Errorf("do: Error closing response body, url: %s, err: %v", req.URL, err)
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return resp, body, errors.Wrapf(err, "error reading response body, url: %s, status: %s", req.URL, resp.Status)
	}
	return resp, body, nil
}

// resolveRedirect requests a share link and returns the Location it redirects to.
func (c Client) resolveRedirect(ctx context.Context, url string) (string, error) {
	req, err := newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrapf(err, "error creating request from URL: %s", url)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 Windows")
	hc := *c.httpClient()
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "error doing request to share link: %s", url)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 500*1024))
	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		return "", errors.Errorf("failed resolving share link, url: %s, status: %s is not a redirect", url, resp.Status)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", errors.Errorf("failed resolving share link, url: %s, empty Location header", url)
	}
	return location, nil
}
