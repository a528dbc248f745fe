package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/vending/internal/balance"
	"github.com/iurnickita/vending/internal/handler/config"
	"github.com/iurnickita/vending/internal/logger"
	"github.com/iurnickita/vending/internal/model"
	"github.com/iurnickita/vending/internal/money"
	"github.com/iurnickita/vending/internal/service"
)

const (
	ParamMachineID = "machine_id"
	ParamLimit     = "limit"

	defaultTransactionsLimit = 50
)

// Serve runs the HTTP surface until ctx is cancelled.
func Serve(ctx context.Context, cfg config.Config, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(service, zaplog)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      h.newRouter(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		zaplog.Info("http server started", zap.String("addr", cfg.ServerAddr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	zaplog.Info("http server stopped")
	return nil
}

type handler struct {
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /api/v1/vending/products", logger.RequestLogMdlw(h.GetProducts, h.zaplog))
	mux.HandleFunc("POST /api/v1/vending/buy/product", logger.RequestLogMdlw(h.PostBuy, h.zaplog))

	mux.HandleFunc("GET /api/v1/admin/products", logger.RequestLogMdlw(h.GetAdminProducts, h.zaplog))
	mux.HandleFunc("POST /api/v1/admin/products", logger.RequestLogMdlw(h.PostProduct, h.zaplog))
	mux.HandleFunc("PUT /api/v1/admin/products/{id}", logger.RequestLogMdlw(h.PutProduct, h.zaplog))
	mux.HandleFunc("DELETE /api/v1/admin/products/{id}", logger.RequestLogMdlw(h.DeleteProduct, h.zaplog))
	mux.HandleFunc("GET /api/v1/admin/balance", logger.RequestLogMdlw(h.GetBalance, h.zaplog))
	mux.HandleFunc("PUT /api/v1/admin/balance", logger.RequestLogMdlw(h.PutBalance, h.zaplog))
	mux.HandleFunc("GET /api/v1/admin/stats", logger.RequestLogMdlw(h.GetStats, h.zaplog))
	mux.HandleFunc("GET /api/v1/admin/transactions", logger.RequestLogMdlw(h.GetTransactions, h.zaplog))

	return mux
}

type ErrorJSONResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Коды ошибок покупки
const (
	CodeProductNotFound   = "PRODUCT_NOT_FOUND"
	CodeOutOfStock        = "OUT_OF_STOCK"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeCannotMakeChange  = "CANNOT_MAKE_CHANGE"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeMachineNotFound   = "MACHINE_NOT_FOUND"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeConflict          = "CONFLICT"
)

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		return http.StatusNotFound, CodeProductNotFound
	case errors.Is(err, service.ErrMachineNotFound):
		return http.StatusNotFound, CodeMachineNotFound
	case errors.Is(err, service.ErrOutOfStock):
		return http.StatusBadRequest, CodeOutOfStock
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusBadRequest, CodeInsufficientFunds
	case errors.Is(err, service.ErrCannotMakeChange):
		return http.StatusBadRequest, CodeCannotMakeChange
	case errors.Is(err, service.ErrInvalidMoney),
		errors.Is(err, service.ErrUnknownDenomination),
		errors.Is(err, service.ErrInsufficientData),
		errors.Is(err, balance.ErrDuplicateDenomination):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, service.ErrAlreadyExists):
		return http.StatusConflict, CodeAlreadyExists
	case errors.Is(err, service.ErrConflict):
		return http.StatusServiceUnavailable, CodeConflict
	default:
		return http.StatusInternalServerError, ""
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.zaplog.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, ErrorJSONResponse{Error: err.Error(), Code: code})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseJSON)
}

func (h *handler) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorJSONResponse{Error: err.Error(), Code: CodeInvalidInput})
		return false
	}
	return true
}

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ProductJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int64  `json:"stock"`
	Image string `json:"image"`
}

type AdminProductJSON struct {
	ProductJSON
	TotalSold int64 `json:"total_sold"`
}

func productJSON(p model.Product) ProductJSON {
	return ProductJSON{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock, Image: p.Image}
}

func adminProductJSON(p model.AdminProduct) AdminProductJSON {
	return AdminProductJSON{ProductJSON: productJSON(p.Product), TotalSold: p.TotalSold}
}

func (h *handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Products(r.Context(), r.URL.Query().Get(ParamMachineID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	productsJSON := make([]ProductJSON, 0, len(products))
	for _, p := range products {
		productsJSON = append(productsJSON, productJSON(p))
	}
	h.writeJSON(w, http.StatusOK, productsJSON)
}

type MoneyItemJSON struct {
	Denomination int64 `json:"denomination"`
	Quantity     int64 `json:"quantity"`
}

type PostBuyJSONRequest struct {
	MachineID     string          `json:"machine_id,omitempty"`
	ProductID     string          `json:"product_id"`
	InsertedMoney []MoneyItemJSON `json:"inserted_money"`
}

type PostBuyJSONResponse struct {
	ProductName  string          `json:"product_name"`
	PaidAmount   int64           `json:"paid_amount"`
	ChangeAmount int64           `json:"change_amount"`
	Change       map[int64]int64 `json:"change"`
}

// moneySet складывает повторяющиеся номиналы. Каждая строка проверяется
// отдельно, чтобы отрицательная не погасила положительную.
func moneySet(items []MoneyItemJSON) (money.Set, error) {
	set := money.Set{}
	for _, item := range items {
		line := money.Set{item.Denomination: item.Quantity}
		if err := money.Validate(line); err != nil {
			return nil, err
		}
		merged, err := money.Merge(set, line)
		if err != nil {
			return nil, err
		}
		set = merged
	}
	if err := money.Validate(set); err != nil {
		return nil, err
	}
	return set, nil
}

func (h *handler) PostBuy(w http.ResponseWriter, r *http.Request) {
	var buyJSON PostBuyJSONRequest
	if !h.readJSON(w, r, &buyJSON) {
		return
	}
	inserted, err := moneySet(buyJSON.InsertedMoney)
	if err != nil {
		h.writeError(w, err)
		return
	}

	machineID := buyJSON.MachineID
	if machineID == "" {
		machineID = r.URL.Query().Get(ParamMachineID)
	}
	result, err := h.service.Purchase(r.Context(), model.PurchaseRequest{
		MachineID: machineID,
		ProductID: buyJSON.ProductID,
		Inserted:  inserted,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	change := make(map[int64]int64, len(result.Change))
	for d, n := range result.Change {
		if n > 0 {
			change[d] = n
		}
	}
	h.writeJSON(w, http.StatusOK, PostBuyJSONResponse{
		ProductName:  result.ProductName,
		PaidAmount:   result.PaidAmount,
		ChangeAmount: result.ChangeAmount,
		Change:       change,
	})
}

func (h *handler) GetAdminProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.AdminProducts(r.Context(), r.URL.Query().Get(ParamMachineID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	productsJSON := make([]AdminProductJSON, 0, len(products))
	for _, p := range products {
		productsJSON = append(productsJSON, adminProductJSON(p))
	}
	h.writeJSON(w, http.StatusOK, productsJSON)
}

type ProductJSONRequest struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int64  `json:"stock"`
	Image string `json:"image"`
}

func (h *handler) PostProduct(w http.ResponseWriter, r *http.Request) {
	var productReq ProductJSONRequest
	if !h.readJSON(w, r, &productReq) {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), r.URL.Query().Get(ParamMachineID), model.Product{
		Name:  productReq.Name,
		Price: productReq.Price,
		Stock: productReq.Stock,
		Image: productReq.Image,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, productJSON(product))
}

func (h *handler) PutProduct(w http.ResponseWriter, r *http.Request) {
	var productReq ProductJSONRequest
	if !h.readJSON(w, r, &productReq) {
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), r.URL.Query().Get(ParamMachineID), model.Product{
		ID:    r.PathValue("id"),
		Name:  productReq.Name,
		Price: productReq.Price,
		Stock: productReq.Stock,
		Image: productReq.Image,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, adminProductJSON(product))
}

func (h *handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteProduct(r.Context(), r.URL.Query().Get(ParamMachineID), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type BalanceItemJSON struct {
	Denomination int64  `json:"denomination"`
	Quantity     int64  `json:"quantity"`
	Type         string `json:"type"`
}

func balanceJSON(items []balance.Item) []BalanceItemJSON {
	out := make([]BalanceItemJSON, 0, len(items))
	for _, item := range items {
		out = append(out, BalanceItemJSON{Denomination: item.Denomination, Quantity: item.Quantity, Type: item.Type})
	}
	return out
}

func (h *handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.GetBalance(r.Context(), r.URL.Query().Get(ParamMachineID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceJSON(items))
}

func (h *handler) PutBalance(w http.ResponseWriter, r *http.Request) {
	var itemsJSON []MoneyItemJSON
	if !h.readJSON(w, r, &itemsJSON) {
		return
	}
	items := make([]balance.Item, 0, len(itemsJSON))
	for _, item := range itemsJSON {
		items = append(items, balance.Item{Denomination: item.Denomination, Quantity: item.Quantity})
	}
	set, err := h.service.SetBalance(r.Context(), r.URL.Query().Get(ParamMachineID), items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceJSON(set))
}

type StatsJSONResponse struct {
	TotalSold   int64 `json:"total_sold"`
	TotalEarned int64 `json:"total_earned"`
}

func (h *handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), r.URL.Query().Get(ParamMachineID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, StatsJSONResponse{TotalSold: stats.TotalSold, TotalEarned: stats.TotalEarned})
}

type TransactionMoneyJSON struct {
	Denomination int64  `json:"denomination"`
	Quantity     int64  `json:"quantity"`
	Direction    string `json:"direction"`
}

type TransactionJSONResponse struct {
	ID           string                 `json:"id"`
	ProductID    string                 `json:"product_id"`
	ProductPrice int64                  `json:"product_price"`
	PaidAmount   int64                  `json:"paid_amount"`
	ChangeAmount int64                  `json:"change_amount"`
	Status       string                 `json:"status"`
	Money        []TransactionMoneyJSON `json:"money"`
	CreatedAt    time.Time              `json:"created_at"`
}

func transactionMoney(set money.Set, direction string) []TransactionMoneyJSON {
	var out []TransactionMoneyJSON
	for _, d := range set.Denominations() {
		if n := set[d]; n > 0 {
			out = append(out, TransactionMoneyJSON{Denomination: d, Quantity: n, Direction: direction})
		}
	}
	return out
}

func (h *handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultTransactionsLimit
	if s := r.URL.Query().Get(ParamLimit); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, ErrorJSONResponse{Error: "invalid limit", Code: CodeInvalidInput})
			return
		}
		limit = n
	}

	records, err := h.service.Transactions(r.Context(), r.URL.Query().Get(ParamMachineID), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	transactionsJSON := make([]TransactionJSONResponse, 0, len(records))
	for _, rec := range records {
		moneyJSON := transactionMoney(rec.Inserted, model.MoneyDirectionInserted)
		moneyJSON = append(moneyJSON, transactionMoney(rec.Returned, model.MoneyDirectionChange)...)
		transactionsJSON = append(transactionsJSON, TransactionJSONResponse{
			ID:           rec.ID,
			ProductID:    rec.ProductID,
			ProductPrice: rec.ProductPrice,
			PaidAmount:   rec.PaidAmount,
			ChangeAmount: rec.ChangeAmount,
			Status:       rec.Status,
			Money:        moneyJSON,
			CreatedAt:    rec.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, transactionsJSON)
}
