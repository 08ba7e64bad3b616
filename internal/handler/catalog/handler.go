package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/topup-bot/internal/model/catalog"
	"github.com/zhouzirui/topup-bot/pkg/utils"
)

// Handler 商品目录的HTTP处理器
type Handler struct {
	catalog catalog.Store
}

// New 创建目录处理器
func New(store catalog.Store) *Handler {
	return &Handler{
		catalog: store,
	}
}

// RegisterRoutes 注册目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/catalog", h.handleGetCatalog)
}

// Response 是目录接口的返回体
type Response struct {
	Amounts        []catalog.Option `json:"amounts"`
	PaymentMethods []catalog.Option `json:"paymentMethods"`
}

// handleGetCatalog 列出可选面额与支付渠道
func (h *Handler) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, Response{
		Amounts:        h.catalog.Amounts(),
		PaymentMethods: h.catalog.PaymentMethods(),
	})
}
