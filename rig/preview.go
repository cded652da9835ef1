package rig

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// PreviewResolver maps a step number to the URL of its artifact. The query
// carries the current time so an overwritten file is never served from cache.
type PreviewResolver struct {
	base *url.URL
	now  func() time.Time
}

func NewPreviewResolver(c *Client) *PreviewResolver {
	return &PreviewResolver{base: c.Base(), now: time.Now}
}

// WithClock returns a copy of the resolver reading time from now.
func (p *PreviewResolver) WithClock(now func() time.Time) *PreviewResolver {
	return &PreviewResolver{base: p.base, now: now}
}

func (p *PreviewResolver) Resolve(seq uint64) string {
	u := *p.base
	u.Path = u.Path + fmt.Sprintf(uploadsFmt, seq)
	u.RawQuery = url.Values{"t": {strconv.FormatInt(p.now().UnixMilli(), 10)}}.Encode()
	return u.String()
}
