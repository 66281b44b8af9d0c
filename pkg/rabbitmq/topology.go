package rabbitmq

const (
	ExchangeName    = "transcription_exchange"
	DLXName         = "transcription_exchange_dlx"
	WakeupQueueName = "transcription_wakeup_queue"
	WakeupDLQName   = "transcription_wakeup_queue_dlq"
	dlqRoutingKey   = "dlq.transcription.wakeup"
)
