package store

import "fmt"

// Open builds the KV backend named by the config.
func Open(backend, dataPath, redisAddr string) (KV, error) {
	switch backend {
	case "file":
		return NewFile(dataPath)
	case "sqlite":
		return NewSQLite(dataPath)
	case "redis":
		return NewRedis(redisAddr), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
