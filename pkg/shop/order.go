// Package shop turns a cart into the WhatsApp order message sent to the
// shop's number.
package shop

import (
	"net/url"
	"strconv"
	"strings"

	"xsch-membership-backend/pkg/models"
	"xsch-membership-backend/pkg/utils"
)

// ReceiptMessage 捐款凭证消息
const ReceiptMessage = "Hola, adjunto el comprobante de mi aporte voluntario."

// CartItem is one product line of the cart.
type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// OrderLine 订单行
type OrderLine struct {
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Subtotal float64 `json:"subtotal"`
}

// Order is a priced cart ready to be sent.
type Order struct {
	Lines   []OrderLine `json:"lines"`
	Total   float64     `json:"total"`
	Message string      `json:"message"`
	URL     string      `json:"url"`
}

// BuildOrder prices items against catalog and builds the order message.
// Lines keep the order in which products first appear in the cart.
func BuildOrder(catalog []models.Product, items []CartItem, countryCode, shopPhone string) (*Order, error) {
	phone := utils.DigitsOnly(shopPhone)
	if phone == "" {
		return nil, models.NewValidationError("shop_whatsapp", "La tienda no tiene WhatsApp configurado")
	}

	byID := make(map[int64]models.Product, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
	}

	order := &Order{}
	index := make(map[string]int)
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, models.NewValidationError("product_id", "Producto no encontrado")
		}

		subtotal := p.Price * float64(item.Quantity)
		order.Total += subtotal
		if i, seen := index[p.Title]; seen {
			order.Lines[i].Quantity += item.Quantity
			order.Lines[i].Subtotal += subtotal
			continue
		}
		index[p.Title] = len(order.Lines)
		order.Lines = append(order.Lines, OrderLine{Title: p.Title, Quantity: item.Quantity, Subtotal: subtotal})
	}
	if len(order.Lines) == 0 {
		return nil, models.NewValidationError("items", "El carrito está vacío")
	}

	order.Message = orderMessage(order)
	if cc := utils.DigitsOnly(countryCode); len(phone) <= 8 {
		phone = cc + phone
	}
	order.URL = "https://api.whatsapp.com/send?phone=" + phone + "&text=" + url.QueryEscape(order.Message)
	return order, nil
}

func orderMessage(o *Order) string {
	lines := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, "*"+strconv.Itoa(l.Quantity)+"x* "+l.Title)
	}
	return "*📦 NUEVO PEDIDO*\n\n" + strings.Join(lines, "\n") +
		"\n\n*Total a pagar: Bs." + strconv.FormatFloat(o.Total, 'f', -1, 64) + "*"
}

// ReceiptLink 发送捐款凭证的 WhatsApp 链接
func ReceiptLink(countryCode, number string) string {
	if utils.DigitsOnly(number) == "" {
		return ""
	}
	return utils.WhatsAppLink(countryCode, number, ReceiptMessage)
}
