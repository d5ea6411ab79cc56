package kindred

import "context"

// ResponseGenerator produces the companion's reply from its profile.
// Built-in: OpenAIGenerator, GeminiGenerator. The engine always wraps the
// configured generator in a FallbackGenerator, so implementations may fail
// freely.
type ResponseGenerator interface {
	Generate(ctx context.Context, req ResponseRequest) (GeneratedResponse, error)
}

// Compile-time interface checks.
var (
	_ ResponseGenerator = (*OpenAIGenerator)(nil)
	_ ResponseGenerator = (*GeminiGenerator)(nil)
	_ ResponseGenerator = (*FallbackGenerator)(nil)
	_ Locker            = (*KeyedMutex)(nil)
	_ Locker            = (*RedisLocker)(nil)
)
