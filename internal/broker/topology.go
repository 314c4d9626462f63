package broker

// Exchange and queue names for the RabbitMQ topology.
const (
	EventsExchange    = "events"
	DeadLetterExchange = "events.dlx"
	ProcessorQueue    = "agent-processor"
	DeadLetterQueue   = "events.dlq"
	DeadLetterKey     = "dead-letter"

	// DelayExchange and DelayQueue implement the durable redelivery delay:
	// a message that failed is republished here with a
	// per-message TTL (2^retry seconds); once it expires, RabbitMQ dead-
	// letters it back onto EventsExchange with its original routing key,
	// re-entering the consumer queue. No in-memory timer is involved, so a
	// consumer restart mid-delay loses nothing.
	DelayExchange = "events.delay"
	DelayQueue    = "events.delay.queue"
)

// AMQP header keys carried on every published message.
const (
	HeaderTenantID      = "x-tenant-id"
	HeaderEventType     = "x-event-type"
	HeaderCorrelationID = "x-correlation-id"
	HeaderCausationID   = "x-causation-id"
	HeaderRetryCount    = "x-retry-count"
)

// MaxRetriesConsumer is the default for max_retries_consumer.
const MaxRetriesConsumer = 3
