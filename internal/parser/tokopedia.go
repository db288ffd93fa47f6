package parser

import (
	"bytes"
	"context"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"pricewatch/internal/misc"
	"pricewatch/internal/model"
)

var ErrTokopedia = errors.New("Tokopedia error")
var ErrTokopediaItemNotFound = errors.New("Tokopedia item not found")

var errTokopediaNotPDP = errors.New("Tokopedia page is not PDP")
var errTokopediaFieldKeyNotFound = errors.New("Tokopedia field key not found")

const tokopediaPDPMarker = "pdpSession\":\"{\\\""

type Tokopedia struct {
	Client
	// PageBase defaults to https://www.tokopedia.com.
	PageBase string
}

func (t Tokopedia) Marketplace() string {
	return "tokopedia"
}

func (t Tokopedia) Parse(ctx context.Context, link string) (model.Snapshot, error) {
	path, isShareLink, err := tokopediaNormalizeURL(link)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(ErrTokopediaItemNotFound, "error normalizing URL, err: %v", err)
	}
	if isShareLink {
		location, err := t.resolveRedirect(ctx, "https://tokopedia.app.link"+path)
		if err != nil {
			return model.Snapshot{}, errors.Wrapf(ErrTokopediaItemNotFound, "error resolving share link, err: %v", err)
		}
		if path, isShareLink, err = tokopediaNormalizeURL(location); err != nil {
			return model.Snapshot{}, errors.Wrapf(ErrTokopediaItemNotFound, "failed resolving share link, err: %v", err)
		} else if isShareLink {
			return model.Snapshot{}, errors.Wrap(ErrTokopediaItemNotFound, "failed resolving share link: recursive")
		}
	}

	base := t.PageBase
	if base == "" {
		base = "https://www.tokopedia.com"
	}
	pageURL := base + path
	req, err := newRequest(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "error creating request from URL: %s", pageURL)
	}
	req.Header.Set("Accept", "text/html")

	resp, body, err := t.do(req, 1024*1024)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(ErrTokopedia, "%v", err)
	}
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return model.Snapshot{}, errors.Wrapf(ErrTokopediaItemNotFound, "status: %s, url: %s", resp.Status, pageURL)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Snapshot{}, errors.Wrapf(ErrTokopedia, "error getting item from Tokopedia, status: %s, body:\n%s",
			resp.Status, misc.BytesLimit(body, 500))
	}

	snap, err := tokopediaParseProductPage(body)
	if err != nil {
		if errors.Is(err, errTokopediaNotPDP) {
			return model.Snapshot{}, errors.Wrapf(ErrTokopediaItemNotFound, "%v", err)
		}
		return model.Snapshot{}, errors.Wrapf(err, "error parsing product page, url: %s", pageURL)
	}
	return snap, nil
}

// tokopediaNormalizeURL returns the /{shop}/{product} path of a product link,
// or the share path when the link is a tokopedia.link short link.
func tokopediaNormalizeURL(urlStr string) (string, bool, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", false, err
	}
	switch {
	case parsedURL.Host == "www.tokopedia.com" || parsedURL.Host == "tokopedia.com":
		sp := strings.Split(parsedURL.Path, "/")
		if len(sp) >= 3 && sp[1] != "" && sp[2] != "" {
			return strings.Join(sp[:3], "/"), false, nil
		}
	case (parsedURL.Host == "tokopedia.link" || parsedURL.Host == "tokopedia.app.link") && len(parsedURL.Path) > 5:
		return parsedURL.Path, true, nil
	}
	return "", false, errors.Errorf("invalid url: %s", urlStr)
}

func tokopediaParseProductPage(pageBytes []byte) (model.Snapshot, error) {
	idx := bytes.Index(pageBytes, []byte(tokopediaPDPMarker))
	if idx < 0 {
		return model.Snapshot{}, errors.Wrap(errTokopediaNotPDP, "PDP session not found")
	}
	page := string(pageBytes[idx+len(tokopediaPDPMarker):])

	name, err := tokopediaFindValue(page, "pn\\\":", ",\\\"", true, 300)
	if err != nil {
		return model.Snapshot{}, errors.WithMessage(err, "failed getting itemName")
	}

	priceStr, err := tokopediaFindValue(page, "pr\\\":", ",", false, 32)
	if err != nil {
		return model.Snapshot{}, errors.WithMessage(err, "failed getting itemPrice")
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "invalid itemPrice: %#v", priceStr)
	}

	originalStr, err := tokopediaFindValue(page, "originalPrice\\\":", ",", false, 32)
	if err != nil && !errors.Is(err, errTokopediaFieldKeyNotFound) {
		return model.Snapshot{}, errors.WithMessage(err, "failed getting itemOriginalPrice")
	}
	if original, perr := strconv.ParseFloat(originalStr, 64); err == nil && perr == nil && original > price {
		return model.NewSnapshot(name, model.Float(original), model.Float(price)), nil
	}
	return model.NewSnapshot(name, model.Float(price), nil), nil
}

func tokopediaFindValue(page string, key string, sep string, unquote bool, maxLength int) (string, error) {
	keyIdx := strings.Index(page, key)
	if keyIdx < 0 {
		return "", errors.Wrapf(errTokopediaFieldKeyNotFound, "key (%#v) not found", key)
	}
	page = page[keyIdx+len(key):]
	page = page[:misc.Min(len(page), maxLength+1000)]

	// A closing brace terminates the last field of an object.
	sepIdx := strings.Index(page, sep)
	if clBrIdx := strings.Index(page, "}"); clBrIdx >= 0 && (sepIdx < 0 || clBrIdx < sepIdx) {
		if opBrIdx := strings.Index(page, "{"); opBrIdx < 0 || opBrIdx > clBrIdx {
			sep = "}"
		}
	}
	val, _, ok := strings.Cut(page, sep)
	if !ok {
		return "", errors.Errorf("failed to find value for key (%#v), sep (%#v) not found, page: %#v",
			key, sep, misc.StringLimit(page, misc.Max(maxLength+100, 250)))
	}
	val = strings.ReplaceAll(val, "\\\"", "\"")
	if unquote {
		unqVal, err := strconv.Unquote(val)
		if err != nil {
			return "", errors.Wrapf(err, "failed unquoting value for key (%#v), val: %#v",
				key, misc.StringLimit(val, misc.Max(maxLength+100, 250)))
		}
		val = unqVal
	}
	val = html.UnescapeString(val)
	if len(val) > maxLength {
		return "", errors.Errorf("value for key (%#v) too long (max: %d), val: %#v",
			key, maxLength, misc.StringLimit(val, maxLength+100))
	}
	return val, nil
}
