package providers

import (
	"github.com/smallbiznis/casebill/internal/providers/email"
	"github.com/smallbiznis/casebill/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
