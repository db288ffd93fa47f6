package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"pricewatch/internal/misc"
	"pricewatch/internal/model"
)

var ErrShopeeItemNotFound = errors.New("Shopee item not found")

const shopeePriceScale = 100000

type shopeeItemResponse struct {
	Error int             `json:"error"`
	Data  *shopeeItemData `json:"data"`
}

type shopeeItemData struct {
	ShopID              int64  `json:"shopid"`
	ItemID              int64  `json:"itemid"`
	Name                string `json:"name"`
	Price               int64  `json:"price"`
	PriceBeforeDiscount int64  `json:"price_before_discount"`
	Stock               int    `json:"stock"`
}

type Shopee struct {
	Client
	// APIBase defaults to https://shopee.co.id.
	APIBase string
}

func (s Shopee) Marketplace() string {
	return "shopee"
}

func (s Shopee) Parse(ctx context.Context, link string) (model.Snapshot, error) {
	shopID, itemID, ok := shopeeGetShopAndItemID(link)
	if !ok {
		return model.Snapshot{}, errors.Wrapf(ErrShopeeItemNotFound, "error getting ShopID and ItemID from URL: %s", link)
	}
	base := s.APIBase
	if base == "" {
		base = "https://shopee.co.id"
	}
	apiURL := fmt.Sprintf("%s/api/v4/item/get?shopid=%s&itemid=%s", base, shopID, itemID)

	req, err := newRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "error creating request from apiURL: %s", apiURL)
	}
	req.AddCookie(&http.Cookie{Name: "SPC_U", Value: "-"})

	resp, body, err := s.do(req, 300*1024)
	if err != nil {
		return model.Snapshot{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return model.Snapshot{}, errors.Errorf("error getting item from Shopee, status: %s, body:\n%s",
			resp.Status, misc.BytesLimit(body, 500))
	}

	var itemResp shopeeItemResponse
	if err = json.Unmarshal(body, &itemResp); err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "error decoding ShopeeItemAPI response body, apiURL: %s, body:\n%s",
			apiURL, misc.BytesLimit(body, 500))
	}
	if itemResp.Error != 0 || itemResp.Data == nil {
		return model.Snapshot{}, ErrShopeeItemNotFound
	}
	return itemResp.Data.toSnapshot(), nil
}

func (d shopeeItemData) toSnapshot() model.Snapshot {
	price := float64(d.Price) / shopeePriceScale
	if d.PriceBeforeDiscount > 0 {
		return model.NewSnapshot(strings.TrimSpace(d.Name),
			model.Float(float64(d.PriceBeforeDiscount)/shopeePriceScale), model.Float(price))
	}
	return model.NewSnapshot(strings.TrimSpace(d.Name), model.Float(price), nil)
}

// shopeeGetShopAndItemID accepts both /product/{shop}/{item} and
// /{name}-i.{shop}.{item} links.
func shopeeGetShopAndItemID(urlStr string) (shopID string, itemID string, ok bool) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", "", false
	}
	var sp []string
	if strings.HasPrefix(parsedURL.Path, "/product/") {
		sp = strings.Split(strings.TrimSuffix(parsedURL.Path, "/"), "/")
	} else {
		sp = strings.Split(parsedURL.Path, ".")
	}
	if len(sp) < 3 {
		return "", "", false
	}
	shopID, itemID = sp[len(sp)-2], sp[len(sp)-1]
	if !misc.IsNum(shopID) || !misc.IsNum(itemID) {
		return "", "", false
	}
	return shopID, itemID, true
}
