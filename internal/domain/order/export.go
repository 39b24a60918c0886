package order

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"
)

var exportHeader = []string{
	"order_number", "created_at", "customer", "email", "phone", "district",
	"status", "payment_method", "payment_status", "items", "final_total",
}

// Export writes every order matching f as CSV, newest first.
func (s *Service) Export(ctx context.Context, f Filter, w io.Writer) (int, error) {
	f.Query = strings.TrimSpace(f.Query)
	f.Page, f.PageSize = 1, 0
	orders, _, err := s.repo.List(ctx, f)
	if err != nil {
		return 0, err
	}
	if err := WriteCSV(w, orders); err != nil {
		return 0, err
	}
	return len(orders), nil
}

func WriteCSV(w io.Writer, orders []*Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, o := range orders {
		if err := cw.Write(csvRow(o)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(o *Order) []string {
	lines := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		desc := it.ProductName
		if variant := strings.Trim(it.Color+"/"+it.Size, "/"); variant != "" {
			desc += " (" + variant + ")"
		}
		lines = append(lines, desc+" x"+strconv.Itoa(it.Quantity))
	}
	return []string{
		o.Number,
		o.CreatedAt.Format(time.RFC3339),
		o.Customer.Name,
		o.Customer.Email,
		o.Customer.Phone,
		o.ShippingAddress.DistrictName,
		string(o.Status),
		string(o.PaymentMethod),
		string(o.PaymentStatus),
		strings.Join(lines, "; "),
		strconv.FormatInt(o.Pricing.FinalTotal, 10),
	}
}
