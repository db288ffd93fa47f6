package parser

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"pricewatch/internal/misc"
	"pricewatch/internal/model"
)

var ErrOpenGraphNoPrice = errors.New("no price meta tags found")

// OpenGraph reads product pages that publish Open Graph product meta tags
// (og:title, product:price:amount, product:original_price:amount,
// product:sale_price:amount). Registered under its Name, "opengraph" by default.
type OpenGraph struct {
	Client
	Name string
}

func (o OpenGraph) Marketplace() string {
	if o.Name == "" {
		return "opengraph"
	}
	return o.Name
}

func (o OpenGraph) Parse(ctx context.Context, link string) (model.Snapshot, error) {
	req, err := newRequest(ctx, http.MethodGet, link, nil)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "error creating request from URL: %s", link)
	}
	req.Header.Set("Accept", "text/html")

	resp, body, err := o.do(req, 2*1024*1024)
	if err != nil {
		return model.Snapshot{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return model.Snapshot{}, errors.Errorf("error getting product page, status: %s, body:\n%s",
			resp.Status, misc.BytesLimit(body, 500))
	}
	return openGraphParsePage(body)
}

func openGraphParsePage(page []byte) (model.Snapshot, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return model.Snapshot{}, errors.Wrap(err, "failed to parse product page HTML")
	}
	meta, title := collectMeta(doc)

	if t := meta["og:title"]; t != "" {
		title = t
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Snapshot{}, nil
	}

	price, hasPrice := parseAmount(meta["product:price:amount"])
	original, hasOriginal := parseAmount(meta["product:original_price:amount"])
	sale, hasSale := parseAmount(meta["product:sale_price:amount"])
	switch {
	case hasOriginal && hasPrice:
		return model.NewSnapshot(title, model.Float(original), model.Float(price)), nil
	case hasPrice && hasSale:
		return model.NewSnapshot(title, model.Float(price), model.Float(sale)), nil
	case hasPrice:
		return model.NewSnapshot(title, model.Float(price), nil), nil
	case hasSale:
		return model.NewSnapshot(title, nil, model.Float(sale)), nil
	}
	return model.Snapshot{}, errors.Wrapf(ErrOpenGraphNoPrice, "title: %s", misc.StringLimit(title, 45))
}

// collectMeta walks the document and returns meta property/name -> content
// along with the text of the first <title> element.
func collectMeta(n *html.Node) (map[string]string, string) {
	meta := make(map[string]string)
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var key, content string
				for _, a := range n.Attr {
					switch strings.ToLower(a.Key) {
					case "property", "name", "itemprop":
						key = strings.ToLower(strings.TrimSpace(a.Val))
					case "content":
						content = a.Val
					}
				}
				if _, seen := meta[key]; key != "" && !seen {
					meta[key] = strings.TrimSpace(content)
				}
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return meta, title
}

// parseAmount reads "1299.90", "1 299,90" or "1,299.90".
func parseAmount(s string) (float64, bool) {
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}
