package handlers

import (
	"errors"
	"net/http"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/shop"
	"xsch-membership-backend/pkg/utils"

	"go.uber.org/zap"
)

// ShopHandler 商店与捐款处理器
type ShopHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewShopHandler 创建商店与捐款处理器
func NewShopHandler(cfg *config.Config, db database.DatabaseInterface) *ShopHandler {
	return &ShopHandler{
		config: cfg,
		db:     db,
	}
}

// Products 商品列表
func (h *ShopHandler) Products(w http.ResponseWriter, r *http.Request) {
	list, err := h.db.ListProducts()
	if err != nil {
		logging.L().Error("list products failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error al cargar productos")
		return
	}
	utils.WriteSuccessResponse(w, list)
}

// Order 生成 WhatsApp 订单消息与链接
func (h *ShopHandler) Order(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []shop.CartItem `json:"items"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	products, err := h.db.ListProducts()
	if err != nil {
		logging.L().Error("list products failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error al cargar productos")
		return
	}
	conf, err := h.db.GetSystemConf()
	if errors.Is(err, models.ErrNotFound) {
		conf = &models.SystemConf{}
	} else if err != nil {
		logging.L().Error("load system conf failed", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Error interno del servidor")
		return
	}

	order, err := shop.BuildOrder(products, req.Items, h.config.CountryCode, conf.ShopWhatsapp)
	if utils.WriteDomainError(w, err, "Error al generar el pedido") {
		return
	}
	utils.WriteSuccessResponse(w, order)
}

// Donation 最新捐款二维码与凭证链接
func (h *ShopHandler) Donation(w http.ResponseWriter, r *http.Request) {
	qr, err := h.db.GetLatestDonationQR()
	if utils.WriteDomainError(w, err, "Error al cargar el QR") {
		return
	}

	utils.WriteSuccessResponse(w, map[string]string{
		"url_image":    qr.URLImage,
		"receipt_link": shop.ReceiptLink(h.config.CountryCode, qr.Comprobante),
	})
}
