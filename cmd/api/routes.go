package main

import (
	"net/http"

	"github.com/josh-kwaku/label-ledger/internal/handler"
	"github.com/josh-kwaku/label-ledger/internal/metrics"
)

type handlers struct {
	health      *handler.HealthHandler
	docs        *handler.DocsHandler
	webhook     *handler.WebhookHandler
	ledger      *handler.LedgerHandler
	withdrawals *handler.WithdrawalHandler
	payments    *handler.PaymentHandler
	purchases   *handler.PurchaseHandler
	admin       *handler.AdminHandler
	devAuth     *handler.AuthHandler
}

type middlewareFunc func(http.Handler) http.Handler

// chain applies mws so that the first one is outermost.
func chain(mws ...middlewareFunc) middlewareFunc {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

func registerRoutes(mux *http.ServeMux, h handlers, account, admin middlewareFunc) {
	mux.HandleFunc("GET /health", h.health.Liveness)
	mux.HandleFunc("GET /health/ready", h.health.Readiness)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /docs", h.docs.UI)
	mux.HandleFunc("GET /docs/openapi.yaml", h.docs.Spec)

	mux.HandleFunc("POST /api/v1/webhooks/provider", h.webhook.ReceiveProviderWebhook)
	if h.devAuth != nil {
		mux.HandleFunc("POST /dev/token", h.devAuth.DevToken)
	}

	acct := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, account(fn))
	}
	acct("GET /api/v1/balance", h.ledger.Balance)
	acct("GET /api/v1/transactions", h.ledger.Transactions)
	acct("GET /api/v1/transactions/{id}", h.ledger.Transaction)

	acct("POST /api/v1/withdrawals", h.withdrawals.Create)
	acct("GET /api/v1/withdrawals", h.withdrawals.List)
	acct("GET /api/v1/withdrawals/{id}", h.withdrawals.Get)
	acct("POST /api/v1/withdrawals/{id}/cancel", h.withdrawals.Cancel)

	acct("POST /api/v1/payments/checkout", h.payments.Checkout)
	acct("GET /api/v1/payments", h.payments.List)
	acct("GET /api/v1/payments/{id}", h.payments.Get)
	acct("POST /api/v1/payments/{id}/sync", h.payments.Sync)

	acct("POST /api/v1/resources", h.purchases.CreateResource)
	acct("GET /api/v1/resources/{id}", h.purchases.GetResource)
	acct("POST /api/v1/resources/{id}/submit", h.purchases.Submit)
	acct("POST /api/v1/purchases", h.purchases.Purchase)
	acct("POST /api/v1/refunds", h.purchases.Refund)

	adm := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, admin(fn))
	}
	adm("GET /api/v1/admin/withdrawals", h.admin.ListWithdrawals)
	adm("GET /api/v1/admin/withdrawals/{id}", h.admin.GetWithdrawal)
	adm("POST /api/v1/admin/withdrawals/{id}/approve", h.admin.Approve)
	adm("POST /api/v1/admin/withdrawals/{id}/reject", h.admin.Reject)
	adm("POST /api/v1/admin/withdrawals/{id}/mark-paid", h.admin.MarkPaid)
	adm("POST /api/v1/admin/transactions", h.admin.ManualEntry)
	adm("GET /api/v1/admin/accounts/{id}/reconcile", h.admin.Reconcile)
}
