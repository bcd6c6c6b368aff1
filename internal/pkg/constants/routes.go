package constants

// API route constants
const (
	APIPrefix        = "/api/v1"
	PingRoute        = "/ping"
	UploadSignRoute  = "/uploads/sign"
	BatchesRoute     = "/batches"
	BatchRoute       = "/batches/:sessionId"
	BatchCheckout    = "/batches/:sessionId/checkout"
	BatchExport      = "/batches/:sessionId/export"
	ReceiptsRoute    = "/receipts"
	ReceiptRoute     = "/receipts/:id"
	ReceiptsExport   = "/receipts/export"
	BillingWebhook   = "/billing/webhook"
	InternalTask     = "/internal/tasks/:type"
	InternalQueueMon = "/internal/queue/stats"
)
