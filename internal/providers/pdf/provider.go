package pdf

import (
	"context"

	"go.uber.org/fx"
)

// Provider renders billing documents to PDF bytes.
type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// NoOpProvider renders empty documents. It is meant for tests that do not
// care about the payload.
type NoOpProvider struct{}

func (p *NoOpProvider) GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	return []byte{}, nil
}

func (p *NoOpProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	return []byte{}, nil
}
