package constants

// API route constants
const (
	APIRoute      = "/api"
	PaymentsRoute = "/payments"

	PaymentIntentPath       = "/intent"
	PaymentWebhookPath      = "/webhook"
	DelinquentsPath         = "/delinquents"
	DelinquentsNotifyPath   = "/delinquents/notify"
	ManualPaymentPath       = "/manual"
	MemberSummaryPath       = "/member"
	PaymentConfigPath       = "/config"
	ProviderConnectPath     = "/provider/connect"
	ProviderCallbackPath    = "/provider/callback"
	ProviderStatusPath      = "/provider/status"
	HealthRoute             = "/health"
	DocsBasePath            = "/docs/api/"
	OpenAPIDocumentFilePath = "public/docs/v1/openapi.yml"
)
