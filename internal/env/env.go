package env

import (
	"os"
)

const (
	AWSRegion         = "AWS_REGION"
	AWSID             = "AWS_ID"
	AWSSecret         = "AWS_SECRET"
	AWSToken          = "AWS_TOKEN"
	DynamoDBEndpoint  = "DYNAMODB_ENDPOINT"
	OpenAIAPIKey      = "OPENAI_API_KEY"
	OpenAIModel       = "OPENAI_MODEL"
	OpenAIVisionModel = "OPENAI_VISION_MODEL"
	HandlerSecretKey  = "HANDLER_SECRET"
	ChatRedisURL      = "CHAT_REDIS_URL"
	ChatRedisPass     = "CHAT_REDIS_PASS"
	WebUrl            = "WEB_URL"

	// DefaultHandlerID is the handler new escalations are dispatched to
	// when the widget does not name one.
	DefaultHandlerID = "DEFAULT_HANDLER_ID"
)

// Required lists the variables the support server refuses to start without.
// The assistant model names and redis password have defaults.
func Required() []string {
	return []string{
		AWSRegion,
		AWSID,
		AWSSecret,
		OpenAIAPIKey,
		HandlerSecretKey,
		ChatRedisURL,
		WebUrl,
	}
}

func MustHaveRequired() {
	for _, key := range Required() {
		if os.Getenv(key) == "" {
			panic("env: required environment variable not set: " + key)
		}
	}
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}
