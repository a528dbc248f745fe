// Package vendclient talks to a running vending server over its JSON API.
package vendclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/iurnickita/vending/internal/handler"
)

// APIError ответ сервера с кодом ошибки
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("vending api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("vending api %d: %s", e.Status, e.Message)
}

type VendClient interface {
	Products(ctx context.Context) ([]handler.ProductJSON, error)
	Buy(ctx context.Context, productID string, inserted map[int64]int64) (handler.PostBuyJSONResponse, error)
	Balance(ctx context.Context) ([]handler.BalanceItemJSON, error)
	SetBalance(ctx context.Context, items map[int64]int64) ([]handler.BalanceItemJSON, error)
	Stats(ctx context.Context) (handler.StatsJSONResponse, error)
}

type vendClient struct {
	client    *resty.Client
	machineID string
}

// NewVendClient targets serviceAddr. An empty machineID leaves the choice to
// the server default.
func NewVendClient(serviceAddr string, machineID string) VendClient {
	client := resty.New().
		SetBaseURL(serviceAddr).
		SetHeader("Content-Type", "application/json")
	return vendClient{client: client, machineID: machineID}
}

func (client vendClient) request(ctx context.Context) *resty.Request {
	req := client.client.R().SetContext(ctx)
	if client.machineID != "" {
		req.SetQueryParam(handler.ParamMachineID, client.machineID)
	}
	return req
}

func (client vendClient) send(req *resty.Request, method, path string, out any) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return json.Unmarshal(resp.Body(), out)
	default:
		var errJSON handler.ErrorJSONResponse
		if err := json.Unmarshal(resp.Body(), &errJSON); err != nil || errJSON.Error == "" {
			errJSON.Error = string(resp.Body())
		}
		return &APIError{Status: resp.StatusCode(), Code: errJSON.Code, Message: errJSON.Error}
	}
}

func moneyItems(set map[int64]int64) []handler.MoneyItemJSON {
	items := make([]handler.MoneyItemJSON, 0, len(set))
	for d, n := range set {
		items = append(items, handler.MoneyItemJSON{Denomination: d, Quantity: n})
	}
	return items
}

func (client vendClient) Products(ctx context.Context) ([]handler.ProductJSON, error) {
	var products []handler.ProductJSON
	err := client.send(client.request(ctx), http.MethodGet, "/api/v1/vending/products", &products)
	return products, err
}

func (client vendClient) Buy(ctx context.Context, productID string, inserted map[int64]int64) (handler.PostBuyJSONResponse, error) {
	body := handler.PostBuyJSONRequest{
		ProductID:     productID,
		InsertedMoney: moneyItems(inserted),
	}
	var answer handler.PostBuyJSONResponse
	err := client.send(client.request(ctx).SetBody(body), http.MethodPost, "/api/v1/vending/buy/product", &answer)
	return answer, err
}

func (client vendClient) Balance(ctx context.Context) ([]handler.BalanceItemJSON, error) {
	var items []handler.BalanceItemJSON
	err := client.send(client.request(ctx), http.MethodGet, "/api/v1/admin/balance", &items)
	return items, err
}

func (client vendClient) SetBalance(ctx context.Context, set map[int64]int64) ([]handler.BalanceItemJSON, error) {
	var items []handler.BalanceItemJSON
	err := client.send(client.request(ctx).SetBody(moneyItems(set)), http.MethodPut, "/api/v1/admin/balance", &items)
	return items, err
}

func (client vendClient) Stats(ctx context.Context) (handler.StatsJSONResponse, error) {
	var stats handler.StatsJSONResponse
	err := client.send(client.request(ctx), http.MethodGet, "/api/v1/admin/stats", &stats)
	return stats, err
}
