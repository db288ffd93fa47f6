package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"pricewatch/internal/misc"
	"pricewatch/internal/model"
)

var ErrBlibli = errors.New("Blibli error")
var ErrBlibliItemNotFound = errors.New("Blibli item not found")

const blibliShareLinkTTL = 72 * time.Hour

// Cache stores resolved share links between cycles. Prices are never cached.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type blibliProductDetailResponse struct {
	Code int                     `json:"code"`
	Data blibliProductDetailData `json:"data"`
}

type blibliProductDetailData struct {
	ItemSKU string `json:"itemSku"`
	Name    string `json:"name"`
	Stock   int    `json:"stock"`
	Price   struct {
		Listed  float64 `json:"listed"`
		Offered float64 `json:"offered"`
	} `json:"price"`
}

type Blibli struct {
	Client
	// APIBase defaults to https://www.blibli.com.
	APIBase string
	Cache   Cache
}

func (b Blibli) Marketplace() string {
	return "blibli"
}

func (b Blibli) Parse(ctx context.Context, link string) (model.Snapshot, error) {
	sku, err := b.blibliGetSKU(ctx, link)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(ErrBlibliItemNotFound, "failed getting SKU from URL: %#v, err: %v", link, err)
	}
	base := b.APIBase
	if base == "" {
		base = "https://www.blibli.com"
	}
	apiURL := fmt.Sprintf("%s/backend/product-detail/products/%s/_summary", base, sku)

	req, err := newRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "failed to create request to URL: %s", apiURL)
	}
	req.Header.Add("Accept-Language", "en")

	resp, body, err := b.do(req, 300*1024)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(ErrBlibli, "%v", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return model.Snapshot{}, errors.Wrapf(ErrBlibliItemNotFound, "status: %s, body:\n%s",
			resp.Status, misc.BytesLimit(body, 2000))
	}
	var blibliResp blibliProductDetailResponse
	if err = json.Unmarshal(body, &blibliResp); err != nil {
		return model.Snapshot{}, errors.Wrapf(err,
			"error unmarshalling BlibliProductAPI response body, status: %s, body:\n%s",
			resp.Status, misc.BytesLimit(body, 2000))
	}
	if blibliResp.Code != http.StatusOK {
		return model.Snapshot{}, errors.Wrapf(ErrBlibli, "error getting data from BlibliProductAPI, status: %s, body:\n%s",
			resp.Status, misc.BytesLimit(body, 2000))
	}
	return blibliResp.Data.toSnapshot(), nil
}

func (bp blibliProductDetailData) toSnapshot() model.Snapshot {
	name := strings.TrimSpace(strings.ReplaceAll(bp.Name, "\n", " "))
	listed, offered := bp.Price.Listed, bp.Price.Offered
	if listed <= 0 {
		listed = offered
	}
	return model.NewSnapshot(name, model.Float(listed), model.Float(offered))
}

func (b Blibli) blibliGetSKU(ctx context.Context, urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", errors.Wrap(err, "error parsing URL")
	}
	if parsedURL.Host == "blibli.app.link" && len(parsedURL.Path) > 5 {
		resolvedURL, err := b.blibliResolveShareLink(ctx, "https://blibli.app.link"+parsedURL.Path)
		if err != nil {
			return "", errors.WithMessage(err, "failed to get SKU from share link")
		}
		if parsedURL, err = url.Parse(resolvedURL); err != nil {
			return "", errors.Wrap(err, "error parsing resolved URL from share link")
		}
	}
	if parsedURL.Host == "www.blibli.com" || parsedURL.Host == "blibli.com" {
		sp := strings.Split(parsedURL.Path, "/")
		if len(sp) == 4 || len(sp) == 5 {
			sku := sp[len(sp)-1]
			if normSKU, ok := blibliNormalizeSKU(sku); ok {
				return normSKU, nil
			}
			return "", errors.Errorf("invalid SKU: %#v, from URL: %s", sku, parsedURL)
		}
	}
	return "", errors.Errorf("invalid URL: %s", parsedURL)
}

func (b Blibli) blibliResolveShareLink(ctx context.Context, shareURL string) (string, error) {
	cacheKey := "BRSL-" + shareURL
	if b.Cache != nil {
		cached, found, err := b.Cache.Get(ctx, cacheKey)
		if err != nil {
			b.Logger.Errorf("blibliResolveShareLink: Error getting cache with key: %s, err: %v", cacheKey, err)
		} else if found {
			b.Logger.Debugf("blibliResolveShareLink: Cache found, key: %s", cacheKey)
			return cached, nil
		}
	}

	location, err := b.resolveRedirect(ctx, shareURL)
	if err != nil {
		return "", err
	}

	if b.Cache != nil {
		if err = b.Cache.Set(ctx, cacheKey, location, blibliShareLinkTTL); err != nil {
			b.Logger.Errorf("blibliResolveShareLink: Error caching resolved URL, key: %s, URL: %s, err: %v",
				cacheKey, location, err)
		}
	}
	return location, nil
}

// blibliNormalizeSKU accepts product (XXX-00000-00000) and item (XXX-00000-00000-00000)
// SKUs, optionally prefixed with ps--/is-- and using dots as separators.
func blibliNormalizeSKU(sku string) (string, bool) {
	if len(sku) < 15 {
		return "", false
	}
	prefix := strings.ToLower(sku[:4])
	if prefix == "ps--" || prefix == "is--" {
		sku = sku[4:]
	} else {
		prefix = ""
	}
	if !(((prefix == "" || prefix == "ps--") && len(sku) == 15) ||
		((prefix == "" || prefix == "is--") && len(sku) == 21)) {
		return "", false
	}
	sku = strings.ToUpper(strings.ReplaceAll(sku, ".", "-"))
	if sku[3] != '-' || !misc.IsNum(sku[4:9]) || sku[9] != '-' || !misc.IsNum(sku[10:15]) {
		return "", false
	}
	if len(sku) == 21 && (sku[15] != '-' || !misc.IsNum(sku[16:21])) {
		return "", false
	}
	return prefix + sku, true
}
