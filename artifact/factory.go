package artifact

import "fmt"

// NewStore creates a Store based on the configuration.
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "", StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(config)
	case StoreTypeRedis:
		return NewRedisStore(config.Redis)
	case StoreTypeBadger:
		return NewBadgerStore(config)
	default:
		return nil, fmt.Errorf("unsupported artifact store type: %s", config.Type)
	}
}
